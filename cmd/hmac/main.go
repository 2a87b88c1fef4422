// Package main prints the keyed digest of a file using the same HMAC the
// server stores for uploaded documents. The key is read from
// MOMOFIN_INTEGRITY_HMAC_SECRET so it never appears in shell history.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/momofin/momofin-backend/pkg/checksum"
)

func main() {
	algorithm := flag.String("algorithm", checksum.DefaultAlgorithm, "HMAC algorithm ("+strings.Join(checksum.SupportedAlgorithms(), ", ")+")")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-algorithm NAME] FILE\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	digest, err := checksum.ComputeHMACFile(flag.Arg(0), []byte(os.Getenv("MOMOFIN_INTEGRITY_HMAC_SECRET")), *algorithm)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Println(digest)
}
