package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"guestflow/internal/templates"
	"guestflow/internal/types"
)

// Compile-time assertion that OrgRepository serves template override lookups.
var _ templates.OverrideSource = (*OrgRepository)(nil)

// OrgRepository provides data access for the organizations and
// template_overrides tables.
type OrgRepository struct {
	db DBTX
}

// NewOrgRepository creates a new OrgRepository backed by the given database
// connection (pool or transaction).
func NewOrgRepository(db DBTX) *OrgRepository {
	return &OrgRepository{db: db}
}

const orgColumns = `id, name, country_code, timezone, check_in_url, default_amount_cents, created_at`

// GetByID loads one organization.
func (r *OrgRepository) GetByID(ctx context.Context, id int64) (*types.Organization, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id)

	org, err := scanOrg(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load organization", err)
	}
	return org, nil
}

// ListAll returns every organization, used by the daily schedulers to walk
// tenants in their own timezones.
func (r *OrgRepository) ListAll(ctx context.Context) ([]*types.Organization, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orgColumns+` FROM organizations ORDER BY id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list organizations", err)
	}
	defer rows.Close()

	var results []*types.Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan organization row", err)
		}
		results = append(results, org)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating organization rows", err)
	}

	return results, nil
}

// GetOverride reads one template override body. locationID zero queries the
// organization-level row (stored with location_id = 0).
func (r *OrgRepository) GetOverride(ctx context.Context, orgID, locationID int64, msgType types.MessageType, lang types.Language) (string, bool, error) {
	var body string
	err := r.db.QueryRow(ctx,
		`SELECT body FROM template_overrides
		 WHERE organization_id = $1 AND location_id = $2
		   AND message_type = $3 AND language = $4`,
		orgID, locationID, string(msgType), string(lang)).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, types.NewAppError(types.ErrCodeInternalDB, "failed to load template override", err)
	}
	return body, true, nil
}

func scanOrg(row pgx.Row) (*types.Organization, error) {
	var org types.Organization
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.CountryCode,
		&org.Timezone,
		&org.CheckInURL,
		&org.DefaultCents,
		&org.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}
