package redact

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"sentra/pkg/testutil"
)

type RedactSuite struct {
	suite.Suite
}

func TestRedactSuite(t *testing.T) {
	suite.Run(t, new(RedactSuite))
}

func (s *RedactSuite) TestEmailMasking() {
	s.Run("long local part keeps first and last character", func() {
		s.Equal("j*******n@example.com", String("johnathan@example.com"))
	})

	s.Run("two character local part is fully masked", func() {
		s.Equal("**@example.com", String("jo@example.com"))
	})

	s.Run("one character local part is fully masked", func() {
		s.Equal("**@example.com", String("j@example.com"))
	})

	s.Run("leading at sign is replaced with placeholder", func() {
		s.Equal(RedactedEmail, String("@example.com"))
	})

	s.Run("masking is idempotent", func() {
		once := String("johnathan@example.com")
		s.Equal(once, String(once))
	})

	s.Run("string without both markers passes through", func() {
		s.Equal("no-at-sign-here", String("no-at-sign-here"))
		s.Equal("user@localhost", String("user@localhost"))
	})
}

func (s *RedactSuite) TestCreditCardMasking() {
	s.Run("spaced sixteen digit number is replaced", func() {
		s.Equal(RedactedCreditCard, String("4111 1111 1111 1111"))
	})

	s.Run("dashed number is replaced", func() {
		s.Equal(RedactedCreditCard, String("4111-1111-1111-1111"))
	})

	s.Run("thirteen digits is the lower bound", func() {
		s.Equal(RedactedCreditCard, String("4111111111111"))
		s.Equal("411111111111", String("411111111111"))
	})

	s.Run("nineteen digits is the upper bound", func() {
		s.Equal(RedactedCreditCard, String(strings.Repeat("4", 19)))
		s.Equal(strings.Repeat("4", 20), String(strings.Repeat("4", 20)))
	})
}

func (s *RedactSuite) TestSSNMasking() {
	s.Run("dashed SSN is replaced", func() {
		s.Equal(RedactedSSN, String("123-45-6789"))
	})

	s.Run("nine plain digits are replaced", func() {
		s.Equal(RedactedSSN, String("123456789"))
	})

	s.Run("eight digits pass through", func() {
		s.Equal("12345678", String("12345678"))
	})
}

func (s *RedactSuite) TestTruncation() {
	s.Run("strings above the limit are truncated with ellipsis", func() {
		long := strings.Repeat("x", 1500)
		got := String(long)
		s.Len(got, 1000)
		s.True(strings.HasSuffix(got, "..."))
	})

	s.Run("strings at the limit are unchanged", func() {
		exact := strings.Repeat("x", 1000)
		s.Equal(exact, String(exact))
	})
}

func (s *RedactSuite) TestValue() {
	s.Run("non-string values pass through untouched", func() {
		s.Equal(42, Value(42))
		s.Equal(true, Value(true))
		s.Nil(Value(nil))
	})

	s.Run("numeric value matching an SSN is replaced", func() {
		s.Equal(RedactedSSN, Value(123456789))
	})
}

func (s *RedactSuite) TestMap() {
	got := Map(map[string]any{
		"email":  "alice@corp.example",
		"card":   "4111 1111 1111 1111",
		"amount": 99.95,
	})
	s.Equal("a***e@corp.example", got["email"])
	s.Equal(RedactedCreditCard, got["card"])
	s.Equal(99.95, got["amount"])
}

type DetailsSuite struct {
	suite.Suite
}

func TestDetailsSuite(t *testing.T) {
	suite.Run(t, new(DetailsSuite))
}

func (s *DetailsSuite) TestWithSanitizes() {
	d := NewDetails().
		With("email", "bob@example.com").
		With("note", "ok")

	email, _ := d.Get("email")
	s.Equal("b*b@example.com", email)
	s.Equal("ok", d.GetString("note"))
}

func (s *DetailsSuite) TestWithReturnsCopy() {
	base := NewDetails().With("a", 1)
	_ = base.With("b", 2)
	s.Equal(1, base.Len())
}

func (s *DetailsSuite) TestMarshalRoundTrip() {
	d := DetailsFrom(map[string]any{"ssn": "123-45-6789"})
	raw, err := json.Marshal(d)
	s.Require().NoError(err)
	s.NotContains(string(raw), "6789")

	var back Details
	s.Require().NoError(json.Unmarshal(raw, &back))
	s.Equal(RedactedSSN, back.GetString("ssn"))
}

func (s *DetailsSuite) TestUnmarshalSanitizesRawInput() {
	var d Details
	s.Require().NoError(json.Unmarshal([]byte(`{"card":"4111111111111111"}`), &d))
	s.Equal(RedactedCreditCard, d.GetString("card"))
}

func TestCheckoutDetailsScenario(t *testing.T) {
	var details Details

	testutil.Given(t, "checkout details holding an email and a card number", func(t *testing.T) {
		details = DetailsFrom(map[string]any{
			"customer": "alice.smith@example.com",
			"card":     "4111111111111111",
			"amount":   "49.90",
		})
	})

	testutil.When(t, "the details round-trip through JSON", func(t *testing.T) {
		raw, err := json.Marshal(details)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &details))
	})

	testutil.Then(t, "only the non-sensitive values survive", func(t *testing.T) {
		require.Equal(t, "a*********h@example.com", details.GetString("customer"))
		require.Equal(t, RedactedCreditCard, details.GetString("card"))
		require.Equal(t, "49.90", details.GetString("amount"))
	})
}
