//go:build !unix

package sqnsdio

func isTimeoutErrno(err error) bool { return false }

func errnoName(err error) string { return "" }
