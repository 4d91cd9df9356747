package common

import (
	"unsafe"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// BytesToSlice reinterprets a byte slice as a slice of T, the inverse of SliceToBytes.
// Trailing bytes that do not fill a whole T are ignored. The result shares memory with the input.
//
// Parameters:
//   - data: source byte slice, typically captured from a GPU upload
//
// Returns:
//   - []T: view of the input bytes as T values, or nil if fewer bytes than one T are supplied
func BytesToSlice[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 || len(data) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/size)
}

// CeilPow2Multiple returns the smallest base*2^k (k >= 0) that is greater than or equal to need.
//
// Parameters:
//   - base: the minimum value, must be > 0
//   - need: the value to cover
//
// Returns:
//   - int: base doubled until it covers need
func CeilPow2Multiple(base, need int) int {
	c := base
	for c < need {
		c <<= 1
	}
	return c
}

// IsPow2Multiple reports whether v equals base*2^k for some k >= 0.
func IsPow2Multiple(base, v int) bool {
	if base <= 0 || v < base || v%base != 0 {
		return false
	}
	q := v / base
	return q&(q-1) == 0
}
