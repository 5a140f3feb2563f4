// Package watch turns a stream of file-change notifications into debounced
// re-runs. It does not watch the filesystem itself; the CLI feeds it from
// fsnotify.
package watch
