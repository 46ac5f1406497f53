package memstore

import (
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sudo-init-do/workerlly/internal/geo"
	"github.com/sudo-init-do/workerlly/internal/models"
)

// Seed is a YAML fixture of the reference data the service reads but does not own:
// users, addresses and the catalogue. Wallets list accounts to open through the ledger.
type Seed struct {
	Cities []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"cities"`
	Categories []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		ParentID string `yaml:"parent_id"`
	} `yaml:"categories"`
	Rates []struct {
		CityID     string          `yaml:"city_id"`
		CategoryID string          `yaml:"category_id"`
		Min        decimal.Decimal `yaml:"min_hourly_rate"`
		Max        decimal.Decimal `yaml:"max_hourly_rate"`
	} `yaml:"rates"`
	Users []struct {
		ID     string   `yaml:"id"`
		Name   string   `yaml:"name"`
		Mobile string   `yaml:"mobile"`
		Roles  []string `yaml:"roles"`
	} `yaml:"users"`
	Addresses []struct {
		ID     string  `yaml:"id"`
		UserID string  `yaml:"user_id"`
		Line1  string  `yaml:"address_line1"`
		CityID string  `yaml:"city_id"`
		Lat    float64 `yaml:"lat"`
		Lon    float64 `yaml:"lon"`
	} `yaml:"addresses"`
	Wallets []SeedWallet `yaml:"wallets"`
}

type SeedWallet struct {
	UserID        string          `yaml:"user_id"`
	InitialCredit decimal.Decimal `yaml:"initial_credit"`
	CityID        string          `yaml:"city_id"`
	CategoryID    string          `yaml:"category_id"`
}

func ReadSeed(r io.Reader) (*Seed, error) {
	var s Seed
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &s, nil
}

func ReadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSeed(f)
}

// Apply loads the reference data into s. Wallets are left to the caller.
func (s *Store) Apply(seed *Seed) {
	for _, c := range seed.Cities {
		s.PutCity(models.City{ID: c.ID, Name: c.Name, IsActive: true})
	}
	for _, c := range seed.Categories {
		s.PutCategory(models.Category{ID: c.ID, Name: c.Name, ParentID: c.ParentID, IsActive: true})
	}
	for _, r := range seed.Rates {
		s.PutRate(models.Rate{
			ID:            r.CityID + ":" + r.CategoryID,
			CityID:        r.CityID,
			CategoryID:    r.CategoryID,
			MinHourlyRate: r.Min,
			MaxHourlyRate: r.Max,
		})
	}
	for _, u := range seed.Users {
		s.PutUser(models.User{ID: u.ID, Name: u.Name, Mobile: u.Mobile, Roles: u.Roles})
	}
	for _, a := range seed.Addresses {
		s.PutAddress(models.Address{
			ID:           a.ID,
			UserID:       a.UserID,
			AddressLine1: a.Line1,
			CityID:       a.CityID,
			Location:     geo.Point{Lat: a.Lat, Lon: a.Lon},
		})
	}
}
