package sandbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dgnsrekt/flex-integration/internal/api"
)

// SeedRecord is one line of a JSONL seed file. Kind selects which of the
// other fields apply.
type SeedRecord struct {
	Kind string `json:"kind"` // "user", "listing" or "transaction"

	Email   string      `json:"email,omitempty"`
	Profile api.Profile `json:"profile,omitzero"`

	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	AuthorEmail string         `json:"authorEmail,omitempty"`
	State       string         `json:"state,omitempty"`
	Price       *api.Money     `json:"price,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DefaultSeed is loaded when no seed file is configured.
var DefaultSeed = []SeedRecord{
	{Kind: "user", Email: "operator@example.com", Profile: api.Profile{DisplayName: "Operator", FirstName: "Olivia", LastName: "Operator"}},
	{Kind: "user", Email: "provider@example.com", Profile: api.Profile{DisplayName: "Provider P", FirstName: "Paavo", LastName: "Provider"}},
	{Kind: "listing", Title: "Sauna by the lake", AuthorEmail: "provider@example.com", State: "pendingApproval", Price: &api.Money{Amount: 12000, Currency: "EUR"}},
	{Kind: "listing", Title: "Rooftop sauna", AuthorEmail: "provider@example.com", State: "published", Price: &api.Money{Amount: 9000, Currency: "EUR"}},
	{Kind: "transaction"},
}

// LoadSeedFile reads seed records from a JSONL file.
func LoadSeedFile(path string) ([]SeedRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	records, err := readSeed(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func readSeed(r io.Reader) ([]SeedRecord, error) {
	var records []SeedRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec SeedRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Seed applies records to the store in order. Listings refer to authors by
// email, so their users must come first.
func (s *Store) Seed(records []SeedRecord) error {
	for i, rec := range records {
		switch rec.Kind {
		case "user":
			if _, err := s.AddUser(rec.Email, rec.Profile); err != nil {
				return fmt.Errorf("seed record %d: %w", i+1, err)
			}
		case "listing":
			author, err := s.ShowUser(rec.AuthorEmail, "")
			if err != nil {
				return fmt.Errorf("seed record %d: %w", i+1, err)
			}
			_, err = s.CreateListing(api.ListingCreate{
				Title:       rec.Title,
				Description: rec.Description,
				AuthorID:    author.ID,
				State:       rec.State,
				Price:       rec.Price,
				Metadata:    rec.Metadata,
			})
			if err != nil {
				return fmt.Errorf("seed record %d: %w", i+1, err)
			}
		case "transaction":
			s.AddTransaction()
		default:
			return fmt.Errorf("seed record %d: unknown kind %q", i+1, rec.Kind)
		}
	}
	return nil
}
