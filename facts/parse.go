/*
Package facts reads and writes the ledger's Prolog-style fact files.

PURPOSE:
  Bank data has historically been kept as Prolog facts. This package lets an
  operator seed an empty store from such a file and export a store back to
  the same format, so a persist/reload cycle round-trips.

FORMAT:
  % comment
  client(100, 'Ana Silva', 'Baixa', 'Porto', '03-06-2019').
  transaction(100, 50, '12-03-2024').
  transaction(100, -20, '13-03-2024').
  credit_balance(300, 200).

  - Quoted atoms use single quotes; '' or \' inside is a literal quote,
    \\ a literal backslash.
  - Dates are dd-mm-yyyy, quoted or bare.
  - Directives (":- ...") and rules ("head :- body") are skipped.
  - Facts with other predicate names are skipped and counted.
  - Transactions are kept in file order, which becomes insertion order.

SEE ALSO:
  - import.go: Seeding a store
  - export.go: Writing a store back out
*/
package facts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/warp/bank-ledger/ledger"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("fact file syntax error")

// Transaction is a transaction fact. Facts carry no identifier.
type Transaction struct {
	ClientNumber ledger.ClientNumber
	Amount       ledger.Amount
	Date         ledger.Date
}

// Facts is the content of one fact file.
type Facts struct {
	Clients      []ledger.Client
	Transactions []Transaction
	Credits      []ledger.CreditBalance

	// Skipped counts facts of unknown predicates.
	Skipped int
}

// ParseFile parses the fact file at path.
func ParseFile(path string) (*Facts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fact file: %w", err)
	}
	defer f.Close()

	facts, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return facts, nil
}

// Parse reads facts from r.
func Parse(r io.Reader) (*Facts, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to read facts: %w", err)
	}

	facts := &Facts{}
	for _, cl := range splitClauses(string(data)) {
		if cl.err != nil {
			return nil, cl.err
		}
		if strings.HasPrefix(cl.text, ":-") || containsNeck(cl.text) {
			continue
		}
		name, args, err := parseTerm(cl.text)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, cl.line, err)
		}
		if err := facts.add(name, args); err != nil {
			return nil, fmt.Errorf("line %d: %w", cl.line, err)
		}
	}
	return facts, nil
}

func (f *Facts) add(name string, args []arg) error {
	switch name {
	case "client":
		if len(args) != 5 {
			return arityError(name, 5, len(args))
		}
		number, err := args[0].clientNumber()
		if err != nil {
			return err
		}
		opened, err := ledger.ParseDate(args[4].text)
		if err != nil {
			return fmt.Errorf("%w: client %d: %v", ErrSyntax, number, err)
		}
		f.Clients = append(f.Clients, ledger.Client{
			Number:      number,
			Name:        args[1].text,
			Agency:      args[2].text,
			City:        args[3].text,
			OpeningDate: opened,
		})

	case "transaction":
		if len(args) != 3 {
			return arityError(name, 3, len(args))
		}
		number, err := args[0].clientNumber()
		if err != nil {
			return err
		}
		amount, err := args[1].amount()
		if err != nil {
			return err
		}
		date, err := ledger.ParseDate(args[2].text)
		if err != nil {
			return fmt.Errorf("%w: transaction for client %d: %v", ErrSyntax, number, err)
		}
		f.Transactions = append(f.Transactions, Transaction{ClientNumber: number, Amount: amount, Date: date})

	case "credit_balance":
		if len(args) != 2 {
			return arityError(name, 2, len(args))
		}
		number, err := args[0].clientNumber()
		if err != nil {
			return err
		}
		amount, err := args[1].amount()
		if err != nil {
			return err
		}
		f.Credits = append(f.Credits, ledger.CreditBalance{ClientNumber: number, Amount: amount})

	default:
		f.Skipped++
	}
	return nil
}

func arityError(name string, want, got int) error {
	return fmt.Errorf("%w: %s/%d expected, got %s/%d", ErrSyntax, name, want, name, got)
}

// =============================================================================
// CLAUSES
// =============================================================================

type clause struct {
	text string
	line int
	err  error
}

// splitClauses cuts src at full stops outside quotes and comments.
func splitClauses(src string) []clause {
	var (
		clauses []clause
		buf     strings.Builder
		line    = 1
		start   = 0
		inQuote bool
	)
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '\n' {
			line++
		}

		if inQuote {
			buf.WriteRune(c)
			switch {
			case c == '\\' && i+1 < len(runes):
				i++
				buf.WriteRune(runes[i])
			case c == '\'' && i+1 < len(runes) && runes[i+1] == '\'':
				i++
				buf.WriteRune(runes[i])
			case c == '\'':
				inQuote = false
			}
			continue
		}

		switch {
		case c == '%':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			line++
			continue
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			j := i + 2
			for j+1 < len(runes) && !(runes[j] == '*' && runes[j+1] == '/') {
				if runes[j] == '\n' {
					line++
				}
				j++
			}
			if j+1 >= len(runes) {
				return append(clauses, clause{line: line, err: fmt.Errorf("%w: line %d: unterminated comment", ErrSyntax, line)})
			}
			i = j + 1
			continue
		case c == '\'':
			inQuote = true
		case c == '.' && (i+1 == len(runes) || unicode.IsSpace(runes[i+1]) || runes[i+1] == '%'):
			if text := strings.TrimSpace(buf.String()); text != "" {
				clauses = append(clauses, clause{text: text, line: start})
			}
			buf.Reset()
			continue
		}

		if buf.Len() == 0 && unicode.IsSpace(c) {
			continue
		}
		if buf.Len() == 0 {
			start = line
		}
		buf.WriteRune(c)
	}

	if inQuote {
		return append(clauses, clause{line: start, err: fmt.Errorf("%w: line %d: unterminated quoted atom", ErrSyntax, start)})
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		return append(clauses, clause{line: start, err: fmt.Errorf("%w: line %d: clause not terminated by '.'", ErrSyntax, start)})
	}
	return clauses
}

// containsNeck reports a ":-" outside quotes, i.e. a rule.
func containsNeck(text string) bool {
	inQuote := false
	for i := 0; i < len(text); i++ {
		switch {
		case inQuote && text[i] == '\\':
			i++
		case text[i] == '\'':
			inQuote = !inQuote
		case !inQuote && text[i] == ':' && i+1 < len(text) && text[i+1] == '-':
			return true
		}
	}
	return false
}

// =============================================================================
// TERMS
// =============================================================================

type arg struct {
	text   string
	quoted bool
}

func (a arg) clientNumber() (ledger.ClientNumber, error) {
	if a.quoted {
		return 0, fmt.Errorf("%w: client number must be an integer, got '%s'", ErrSyntax, a.text)
	}
	n, err := strconv.Atoi(a.text)
	if err != nil {
		return 0, fmt.Errorf("%w: client number must be an integer, got %s", ErrSyntax, a.text)
	}
	return ledger.ClientNumber(n), nil
}

func (a arg) amount() (ledger.Amount, error) {
	if a.quoted {
		return ledger.Amount{}, fmt.Errorf("%w: amount must be a number, got '%s'", ErrSyntax, a.text)
	}
	return ledger.ParseAmount(a.text)
}

// parseTerm parses name(arg, ...) or a bare atom.
func parseTerm(text string) (string, []arg, error) {
	open := strings.IndexByte(text, '(')
	if open < 0 {
		if !isAtom(text) {
			return "", nil, fmt.Errorf("not a fact: %q", text)
		}
		return text, nil, nil
	}
	name := strings.TrimSpace(text[:open])
	if !isAtom(name) {
		return "", nil, fmt.Errorf("invalid predicate name %q", name)
	}
	if !strings.HasSuffix(text, ")") {
		return "", nil, fmt.Errorf("missing ')' in %q", text)
	}

	body := text[open+1 : len(text)-1]
	var (
		args []arg
		cur  strings.Builder
		i    int
	)
	flush := func(quoted bool) error {
		v := cur.String()
		if !quoted {
			v = strings.TrimSpace(v)
			if v == "" {
				return fmt.Errorf("empty argument in %q", text)
			}
		}
		args = append(args, arg{text: v, quoted: quoted})
		cur.Reset()
		return nil
	}

	for i < len(body) {
		for i < len(body) && isSpace(body[i]) {
			i++
		}
		if i >= len(body) {
			break
		}

		quoted := false
		if body[i] == '\'' {
			quoted = true
			i++
			closed := false
			for i < len(body) {
				c := body[i]
				if c == '\\' && i+1 < len(body) {
					cur.WriteByte(body[i+1])
					i += 2
					continue
				}
				if c == '\'' {
					if i+1 < len(body) && body[i+1] == '\'' {
						cur.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				cur.WriteByte(c)
				i++
			}
			if !closed {
				return "", nil, fmt.Errorf("unterminated quoted atom in %q", text)
			}
			for i < len(body) && isSpace(body[i]) {
				i++
			}
		} else {
			for i < len(body) && body[i] != ',' {
				cur.WriteByte(body[i])
				i++
			}
		}

		if err := flush(quoted); err != nil {
			return "", nil, err
		}
		if i < len(body) {
			if body[i] != ',' {
				return "", nil, fmt.Errorf("expected ',' in %q", text)
			}
			i++
			if strings.TrimSpace(body[i:]) == "" {
				return "", nil, fmt.Errorf("trailing ',' in %q", text)
			}
		}
	}
	return name, args, nil
}

func isAtom(s string) bool {
	if s == "" || !unicode.IsLower(rune(s[0])) {
		return false
	}
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
