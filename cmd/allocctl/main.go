// Command allocctl validates allocator topologies and runs synthetic workloads
// against them.
package main

func main() {
	execute()
}
