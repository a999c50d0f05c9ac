// Command cart keeps a shopping cart in sync with the remote cart API.
package main

import "github.com/mesh-intelligence/cartsync/internal/cli"

func main() {
	cli.Execute()
}
