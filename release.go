//go:build !weakcache_debug

package weakcache

const debugging = false

func assert(bool, string) {}
