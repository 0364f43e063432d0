// Command cxxlink builds a Conan-managed C++ library and links it into a Go
// package through a generated C bridge.
package main

import "github.com/goplus/cxxlink/cmd/cxxlink/internal"

func main() {
	internal.Execute()
}
