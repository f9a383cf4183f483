package utils

import (
	"crypto/rand"
	"math/big"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var (
	Json = jsoniter.ConfigCompatibleWithStandardLibrary

	DNSServers = []string{"1.1.1.1:53", "8.8.8.8:53"}
)

func GenerateRandomString(n int) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	lettersLength := big.NewInt(int64(len(letters)))
	ret := make([]byte, n)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, lettersLength)
		if err != nil {
			return "", err
		}
		ret[i] = letters[num.Int64()]
	}
	return string(ret), nil
}

// SplitHostPort splits a host:port probe target, falling back to defaultPort.
func SplitHostPort(target string, defaultPort int) (string, int) {
	idx := strings.LastIndex(target, ":")
	if idx < 0 {
		return target, defaultPort
	}
	// bare IPv6 literal, no port
	if strings.Count(target, ":") > 1 && !strings.Contains(target, "]") {
		return target, defaultPort
	}
	host := target[:idx]
	port := 0
	for _, c := range target[idx+1:] {
		if c < '0' || c > '9' {
			return target, defaultPort
		}
		port = port*10 + int(c-'0')
	}
	if port == 0 || port > 65535 {
		return target, defaultPort
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return host, port
}

func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
