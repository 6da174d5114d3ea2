// base62 переводит идентификаторы в короткие коды и обратно.
//
//	base62 encode 1000        -> G8
//	base62 decode G8          -> 1000
//	echo 1000 | base62 encode
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/SergeiKhy/shortlink/internal/codec"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s encode|decode [value...]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "values are read from stdin when none are given")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	var convert func(string) (string, error)
	switch flag.Arg(0) {
	case "encode":
		convert = encode
	case "decode":
		convert = decode
	default:
		flag.Usage()
		os.Exit(2)
	}

	values := flag.Args()[1:]
	if len(values) == 0 {
		var err error
		values, err = readLines(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	failed := false
	for _, v := range values {
		out, err := convert(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", v, err)
			failed = true
			continue
		}
		fmt.Println(out)
	}
	if failed {
		os.Exit(1)
	}
}

func encode(s string) (string, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return "", fmt.Errorf("not a decimal integer")
	}
	return codec.Encode(n)
}

func decode(s string) (string, error) {
	n, err := codec.Decode(s)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
