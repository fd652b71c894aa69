package fund

import (
	"strconv"
	"strings"
	"time"
)

// Status classifies whether a fund call is currently accepting applications.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusUnknown Status = "unknown"
)

// TimestampLayout is the format used for the FECHA_EXTRACCION column.
const TimestampLayout = "2006-01-02 15:04:05"

// Record represents one fund announcement, one row of the output CSV.
// A Record is written once, immediately after extraction, and never
// mutated afterward.
type Record struct {
	ID               int
	URL              string
	Status           Status
	TerritorialScope string
	Institution      string
	Name             string
	Beneficiaries    string
	StartDate        string
	EndDate          string
	Amount           string
	Description      string
	Category         string
	TermsURL         string
	ExtractedAt      time.Time
}

// accentFolder flattens the accented vowels that show up in the site's
// badge labels so matching survives inconsistent accenting.
var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
)

// DeriveStatus maps the badge text on a listing card to a Status. The
// comparison is case-insensitive and accent-tolerant; anything other than
// the known open/closed labels is unknown.
func DeriveStatus(badge string) Status {
	badge = accentFolder.Replace(strings.ToLower(strings.TrimSpace(badge)))
	switch badge {
	case "abierto", "abierta":
		return StatusOpen
	case "cerrado", "cerrada":
		return StatusClosed
	default:
		return StatusUnknown
	}
}

// SplitDateRange splits a card's combined date paragraph, rendered as
// "Inicio: <date> | Fin: <date>", into its start and end parts.
// Both are empty when either marker is missing.
func SplitDateRange(text string) (start, end string) {
	if !strings.Contains(text, "Inicio:") || !strings.Contains(text, "Fin:") {
		return "", ""
	}
	parts := strings.SplitN(text, "|", 2)
	start = strings.TrimSpace(strings.ReplaceAll(parts[0], "Inicio:", ""))
	if len(parts) > 1 {
		end = strings.TrimSpace(strings.ReplaceAll(parts[1], "Fin:", ""))
	}
	return start, end
}

// CSVHeader returns the output file's header row. Column names are kept
// in Spanish for compatibility with the existing fondos.csv dataset.
func CSVHeader() []string {
	return []string{
		"ID",
		"URL",
		"ESTADO",
		"ALCANCE",
		"INSTITUCION",
		"NOMBRE",
		"BENEFICIARIO",
		"INICIO",
		"FIN",
		"MONTO",
		"DESCRIPCION",
		"CATEGORIA",
		"WEB",
		"FECHA_EXTRACCION",
	}
}

// CSVRow serializes the record in header order.
func (r *Record) CSVRow() []string {
	return []string{
		strconv.Itoa(r.ID),
		r.URL,
		string(r.Status),
		r.TerritorialScope,
		r.Institution,
		r.Name,
		r.Beneficiaries,
		r.StartDate,
		r.EndDate,
		r.Amount,
		r.Description,
		r.Category,
		r.TermsURL,
		r.ExtractedAt.Format(TimestampLayout),
	}
}
