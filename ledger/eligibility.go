/*
eligibility.go - Pluggable credit eligibility policies

PURPOSE:
  Decides which clients may be granted credit. The rule is a policy
  injected into the engine, not business logic baked into it.

DEFAULT:
  DenyAll. No client is eligible until an operator configures a policy
  (see factory/eligibility.go for the YAML/JSON form). The built-ins below
  are building blocks for such configuration; none of them claims to be
  "the" bank rule.

BUILT-INS:
  AllowAll, DenyAll            constant policies
  AllowList(numbers...)        explicit client numbers
  InCities / InAgencies        exact, case-sensitive attribute match
  OpenedBefore(date)           account opened strictly before date
  MinTenure(days, clock)       account open for at least N days
  All / Any / Not              combinators

EXAMPLE:
  policy := ledger.Any(
      ledger.AllowList(300),
      ledger.All(ledger.InCities("Porto"), ledger.MinTenure(365, time.Now)),
  )
*/
package ledger

import "time"

// EligibilityPolicy decides credit eligibility from client attributes.
type EligibilityPolicy interface {
	Eligible(c Client) bool
}

// EligibilityFunc adapts a function to EligibilityPolicy.
type EligibilityFunc func(c Client) bool

func (f EligibilityFunc) Eligible(c Client) bool { return f(c) }

var (
	// DenyAll is the default policy.
	DenyAll  EligibilityPolicy = EligibilityFunc(func(Client) bool { return false })
	AllowAll EligibilityPolicy = EligibilityFunc(func(Client) bool { return true })
)

func AllowList(numbers ...ClientNumber) EligibilityPolicy {
	set := make(map[ClientNumber]struct{}, len(numbers))
	for _, n := range numbers {
		set[n] = struct{}{}
	}
	return EligibilityFunc(func(c Client) bool {
		_, ok := set[c.Number]
		return ok
	})
}

func InCities(cities ...string) EligibilityPolicy {
	set := stringSet(cities)
	return EligibilityFunc(func(c Client) bool {
		_, ok := set[c.City]
		return ok
	})
}

func InAgencies(agencies ...string) EligibilityPolicy {
	set := stringSet(agencies)
	return EligibilityFunc(func(c Client) bool {
		_, ok := set[c.Agency]
		return ok
	})
}

func OpenedBefore(date Date) EligibilityPolicy {
	return EligibilityFunc(func(c Client) bool {
		return !c.OpeningDate.IsZero() && c.OpeningDate.Before(date)
	})
}

// MinTenure requires the account to have been open for at least days,
// measured against clock at evaluation time.
func MinTenure(days int, clock Clock) EligibilityPolicy {
	if clock == nil {
		clock = time.Now
	}
	return EligibilityFunc(func(c Client) bool {
		if c.OpeningDate.IsZero() {
			return false
		}
		return DaysBetween(c.OpeningDate, DateOf(clock())) >= days
	})
}

// All is true when every policy is true. All() with no policies is true.
func All(policies ...EligibilityPolicy) EligibilityPolicy {
	return EligibilityFunc(func(c Client) bool {
		for _, p := range policies {
			if !p.Eligible(c) {
				return false
			}
		}
		return true
	})
}

// Any is true when at least one policy is true. Any() with no policies is false.
func Any(policies ...EligibilityPolicy) EligibilityPolicy {
	return EligibilityFunc(func(c Client) bool {
		for _, p := range policies {
			if p.Eligible(c) {
				return true
			}
		}
		return false
	})
}

func Not(p EligibilityPolicy) EligibilityPolicy {
	return EligibilityFunc(func(c Client) bool { return !p.Eligible(c) })
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
