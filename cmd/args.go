package cmd

import (
	"strconv"
	"strings"
)

// normalizeFastArgs rewrites `-f N`, `--fast N` and `-fN` to the `=` form.
// The fast flag has an optional value, so pflag would otherwise read a bare
// -f as 1 and treat N as a positional argument.
func normalizeFastArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return append(out, args[i:]...)
		}
		switch {
		case (a == "-f" || a == "--fast") && i+1 < len(args) && isSeconds(args[i+1]):
			out = append(out, a+"="+args[i+1])
			i++
		case strings.HasPrefix(a, "-f") && !strings.HasPrefix(a, "-f=") && isSeconds(a[2:]):
			out = append(out, "-f="+a[2:])
		default:
			out = append(out, a)
		}
	}
	return out
}

func isSeconds(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}
