//go:build gtk

package version

const gtkBuild = true
