// Package codec преобразует числовые идентификаторы в короткие коды Base62 и обратно.
package codec

import (
	"errors"
	"fmt"
	"math/big"
)

// Alphabet фиксирован: порядок символов задаёт значения цифр 0..61.
// Любое изменение ломает совместимость с уже выданными кодами.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Base основание системы счисления
const Base = len(Alphabet)

// Ошибки кодека
var (
	ErrInvalidArgument  = errors.New("codec: identifier must be a non-negative integer")
	ErrInvalidCharacter = errors.New("codec: character outside base62 alphabet")
	ErrEmptyInput       = errors.New("codec: empty short code")
)

var (
	bigBase = big.NewInt(int64(Base))

	// digits отображает байт в значение цифры, -1 для символов вне алфавита
	digits = func() [256]int8 {
		var t [256]int8
		for i := range t {
			t[i] = -1
		}
		for i := 0; i < len(Alphabet); i++ {
			t[Alphabet[i]] = int8(i)
		}
		return t
	}()
)

// Encode кодирует неотрицательное целое произвольной величины в Base62.
// Ноль кодируется одним символом "0", ведущих нулей в остальных случаях нет.
func Encode(n *big.Int) (string, error) {
	if n == nil || n.Sign() < 0 {
		return "", ErrInvalidArgument
	}
	if n.Sign() == 0 {
		return Alphabet[:1], nil
	}

	num := new(big.Int).Set(n)
	rem := new(big.Int)
	// цифры собираются от младшей к старшей, затем разворачиваются
	buf := make([]byte, 0, 12)
	for num.Sign() > 0 {
		num.QuoRem(num, bigBase, rem)
		buf = append(buf, Alphabet[rem.Int64()])
	}
	reverse(buf)

	return string(buf), nil
}

// EncodeUint64 кодирует нативный беззнаковый идентификатор.
func EncodeUint64(n uint64) string {
	if n == 0 {
		return Alphabet[:1]
	}

	// 62^11 > 2^64, поэтому 11 символов достаточно
	var buf [11]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%uint64(Base)]
		n /= uint64(Base)
	}
	return string(buf[i:])
}

// Decode восстанавливает идентификатор из короткого кода.
// Принимает любую строку из символов алфавита, в том числе с ведущими нулями;
// гарантированно обратим только канонический вывод Encode.
func Decode(s string) (*big.Int, error) {
	if s == "" {
		return nil, ErrEmptyInput
	}

	result := new(big.Int)
	digit := new(big.Int)
	for i := 0; i < len(s); i++ {
		v := digits[s[i]]
		if v < 0 {
			return nil, invalidCharacter(s, i)
		}
		result.Mul(result, bigBase)
		result.Add(result, digit.SetInt64(int64(v)))
	}

	return result, nil
}

// Validate проверяет код так же, как Decode, но без арифметики.
func Validate(s string) error {
	if s == "" {
		return ErrEmptyInput
	}
	for i := 0; i < len(s); i++ {
		if digits[s[i]] < 0 {
			return invalidCharacter(s, i)
		}
	}
	return nil
}

func invalidCharacter(s string, pos int) error {
	return fmt.Errorf("%w: %q at position %d", ErrInvalidCharacter, s[pos], pos)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
