package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/domain/models"
	repo "github.com/mamadbah2/balsam/internal/repository/sheets"
)

const (
	dateLayout       = "2006-01-02"
	inventoryRange   = "Inventory!A:K"
	inventoryAnchor  = "Inventory!A1"
	expiringInterval = 30 * 24 * time.Hour
)

// ErrExportDisabled is returned by Export when no sheet is configured.
var ErrExportDisabled = errors.New("inventory export is not configured")

var inventoryHeader = []interface{}{
	"ID", "Brand Name", "Scientific Name", "Purchase Date", "Expiration Date",
	"Purchase Price", "Selling Price", "Quantity", "Location", "Tags", "Group",
}

// Summary is a stock overview of the current inventory.
type Summary struct {
	Drugs        int    `json:"drugs"`
	Units        int64  `json:"units"`
	StockValue   int64  `json:"stockValue"`
	Expired      int    `json:"expired"`
	ExpiringSoon int    `json:"expiringSoon"`
	Text         string `json:"text"`
}

// Service computes inventory summaries and mirrors the list to a spreadsheet.
type Service struct {
	repo   repo.Repository
	logger *zap.Logger
}

// NewService wires a new reporting service instance. A nil repository disables Export.
func NewService(repository repo.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repository, logger: logger}
}

// ExportEnabled reports whether a spreadsheet is configured.
func (s *Service) ExportEnabled() bool {
	return s.repo != nil
}

// Summarize aggregates stock and expiry figures as of now.
func (s *Service) Summarize(drugs []models.Drug, now time.Time) Summary {
	var sum Summary
	today := now.Truncate(24 * time.Hour)

	for _, d := range drugs {
		sum.Drugs++

		qty := int64(0)
		if d.Quantity != nil {
			qty = *d.Quantity
		}
		sum.Units += qty
		if d.SellingPrice != nil {
			sum.StockValue += qty * *d.SellingPrice
		}

		if d.ExpirationDate == "" {
			continue
		}
		expires, err := parseDate(d.ExpirationDate)
		if err != nil {
			s.logger.Debug("skip drug with invalid expiration date", zap.String("drug", d.ID), zap.String("value", d.ExpirationDate), zap.Error(err))
			continue
		}
		switch {
		case expires.Before(today):
			sum.Expired++
		case expires.Before(today.Add(expiringInterval)):
			sum.ExpiringSoon++
		}
	}

	if sum.Drugs == 0 {
		sum.Text = fmt.Sprintf("Inventory (%s): no drugs yet.", now.Format(dateLayout))
		return sum
	}

	sum.Text = fmt.Sprintf("Inventory (%s): %d drugs, %d units, stock value %d. %d expired, %d expiring within 30 days.",
		now.Format(dateLayout), sum.Drugs, sum.Units, sum.StockValue, sum.Expired, sum.ExpiringSoon)
	return sum
}

// Rows renders drugs as spreadsheet rows, header first.
func Rows(drugs []models.Drug) [][]interface{} {
	rows := make([][]interface{}, 0, len(drugs)+1)
	rows = append(rows, inventoryHeader)
	for _, d := range drugs {
		rows = append(rows, []interface{}{
			d.ID, d.BrandName, d.ScientificName, d.PurchaseDate, d.ExpirationDate,
			cell(d.PurchasePrice), cell(d.SellingPrice), cell(d.Quantity),
			d.Location, d.Tags.String(), d.Group,
		})
	}
	return rows
}

// Export replaces the inventory sheet with the given list.
func (s *Service) Export(ctx context.Context, drugs []models.Drug) error {
	if s.repo == nil {
		return ErrExportDisabled
	}

	if err := s.repo.ClearRange(ctx, inventoryRange); err != nil {
		return fmt.Errorf("export inventory: %w", err)
	}
	if err := s.repo.WriteRows(ctx, inventoryAnchor, Rows(drugs)); err != nil {
		return fmt.Errorf("export inventory: %w", err)
	}

	s.logger.Info("inventory exported", zap.Int("drugs", len(drugs)))
	return nil
}

func cell(v *int64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if len(value) > 10 {
		value = value[:10]
	}
	return time.Parse(dateLayout, value)
}
