//go:build weakcache_debug

package weakcache

const debugging = true

func assert(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
