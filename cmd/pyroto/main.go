// Command pyroto compiles protobuf schemas into a Python client library.
package main

func main() {
	Execute()
}
