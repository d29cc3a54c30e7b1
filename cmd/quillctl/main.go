// Command quillctl runs maintenance tasks against the configured backends.
package main

func main() {
	Execute()
}
