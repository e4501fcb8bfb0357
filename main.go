// Command pulsar schedules an engineering roadmap against resource
// availability and deadlines.
package main

import "github.com/papapumpkin/pulsar/cmd"

func main() {
	cmd.Execute()
}
