// Command clepho is the interactive-process entrypoint: it wires the core
// (config, Store, Scanner, DuplicateEngine, TrashManager, Scheduler) behind
// a cobra CLI, the same way the teacher's single binary fronts its
// PhotoPrism-backed sorter in cmd/root.go. The browsing TUI itself is out of
// scope (§1); this binary is the core plus the command surface needed to
// drive it without one.
package main

import "github.com/barrulus/clepho/cmd"

func main() {
	cmd.Execute()
}
