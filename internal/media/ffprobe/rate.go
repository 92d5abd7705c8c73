package ffprobe

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Rate is a frame rate expressed as a reduced rational number.
type Rate struct {
	Num int64
	Den int64
}

var errInvalidRate = errors.New("invalid frame rate")

// RateFromInt returns a whole-number rate such as 25/1.
func RateFromInt(fps int) Rate {
	return Rate{Num: int64(fps), Den: 1}
}

// ParseRate parses "num/den" or decimal text ("25", "29.97"). A zero or
// negative denominator, a negative value, and anything unparseable is rejected.
// A zero rate ("0/1") parses successfully; callers decide whether zero counts.
func ParseRate(text string) (Rate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Rate{}, fmt.Errorf("%w: empty", errInvalidRate)
	}
	if num, den, ok := strings.Cut(text, "/"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
		if err != nil {
			return Rate{}, fmt.Errorf("%w: %q", errInvalidRate, text)
		}
		d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 64)
		if err != nil || d <= 0 || n < 0 {
			return Rate{}, fmt.Errorf("%w: %q", errInvalidRate, text)
		}
		return reduce(n, d), nil
	}
	r, ok := new(big.Rat).SetString(text)
	if !ok || r.Sign() < 0 || !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return Rate{}, fmt.Errorf("%w: %q", errInvalidRate, text)
	}
	return Rate{Num: r.Num().Int64(), Den: r.Denom().Int64()}, nil
}

func reduce(n, d int64) Rate {
	if n == 0 {
		return Rate{Num: 0, Den: 1}
	}
	a, b := n, d
	for b != 0 {
		a, b = b, a%b
	}
	return Rate{Num: n / a, Den: d / a}
}

// Float64 returns the rate in frames per second, or 0 for an unset rate.
func (r Rate) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// IsZero reports whether the rate carries no usable value.
func (r Rate) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

func (r Rate) String() string {
	if r.Den == 0 {
		return "0/0"
	}
	return strconv.FormatInt(r.Num, 10) + "/" + strconv.FormatInt(r.Den, 10)
}
