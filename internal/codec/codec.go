// Package codec содержит примитивы big-endian кодирования поверх байтового буфера.
// Все значения фиксированной ширины, без выравнивания и паддинга.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrTruncatedMessage чтение за пределами буфера: датаграмма повреждена или подделана
	ErrTruncatedMessage = errors.New("codec: truncated message")
	// ErrStringTooLong строка не помещается в префикс длины
	ErrStringTooLong = errors.New("codec: string too long")
)

const (
	ShortSize   = 2
	IntSize     = 4
	FloatSize   = 4
	BooleanSize = 1
)

// PutShort записывает u16 по смещению off. Паникует при выходе за границы буфера.
func PutShort(buf []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(buf[off:], v)
}

// PutInt записывает u32 по смещению off.
func PutInt(buf []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(buf[off:], v)
}

// PutFloat записывает f32 (IEEE 754) по смещению off.
func PutFloat(buf []byte, off int, v float32) {
	binary.BigEndian.PutUint32(buf[off:], math.Float32bits(v))
}

// PutBoolean записывает 1 байт: 1 для true, 0 для false.
func PutBoolean(buf []byte, off int, v bool) {
	if v {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
}

func inRange(buf []byte, off, size int) bool {
	return off >= 0 && off+size <= len(buf)
}

func GetShort(buf []byte, off int) (uint16, error) {
	if !inRange(buf, off, ShortSize) {
		return 0, ErrTruncatedMessage
	}
	return binary.BigEndian.Uint16(buf[off:]), nil
}

func GetInt(buf []byte, off int) (uint32, error) {
	if !inRange(buf, off, IntSize) {
		return 0, ErrTruncatedMessage
	}
	return binary.BigEndian.Uint32(buf[off:]), nil
}

func GetFloat(buf []byte, off int) (float32, error) {
	if !inRange(buf, off, FloatSize) {
		return 0, ErrTruncatedMessage
	}
	return math.Float32frombits(binary.BigEndian.Uint32(buf[off:])), nil
}

// GetBoolean любой ненулевой байт трактуется как true.
func GetBoolean(buf []byte, off int) (bool, error) {
	if !inRange(buf, off, BooleanSize) {
		return false, ErrTruncatedMessage
	}
	return buf[off] != 0, nil
}

// ReadFully копирует length байт начиная с off в новый срез.
func ReadFully(buf []byte, off, length int) ([]byte, error) {
	if length < 0 || !inRange(buf, off, length) {
		return nil, ErrTruncatedMessage
	}
	out := make([]byte, length)
	copy(out, buf[off:off+length])
	return out, nil
}
