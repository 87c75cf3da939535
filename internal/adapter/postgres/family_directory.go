package postgres

import (
	"context"
	"errors"

	"github.com/couchcryptid/flood-risk-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// FamilyDirectory persists safety circles in family_members. Writes that set
// a primary contact clear the previous one in the same statement, backed by
// a partial unique index. The main statement reads the clearing CTE so the
// clear runs before the write is checked against that index.
type FamilyDirectory struct {
	db DBTX
}

func NewFamilyDirectory(db DBTX) *FamilyDirectory {
	return &FamilyDirectory{db: db}
}

const memberColumns = `member_id, display_name, relation, phone, is_primary_contact, has_location_access`

func scanMember(row pgx.Row) (domain.FamilyMember, error) {
	var m domain.FamilyMember
	err := row.Scan(
		&m.MemberID,
		&m.DisplayName,
		&m.Relation,
		&m.Phone,
		&m.IsPrimaryContact,
		&m.HasLocationAccess,
	)
	return m, err
}

func (d *FamilyDirectory) List(ctx context.Context, subjectID string) ([]domain.FamilyMember, error) {
	rows, err := d.db.Query(ctx,
		`SELECT `+memberColumns+` FROM family_members
		 WHERE subject_id = $1
		 ORDER BY created_at, member_id`,
		subjectID,
	)
	if err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to list members", err)
	}
	defer rows.Close()

	var members []domain.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, domain.NewError(domain.CodeInternal, "failed to scan member", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.CodeInternal, "failed to iterate members", err)
	}
	return members, nil
}

func (d *FamilyDirectory) Get(ctx context.Context, subjectID, memberID string) (domain.FamilyMember, error) {
	row := d.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM family_members
		 WHERE subject_id = $1 AND member_id = $2`,
		subjectID, memberID,
	)
	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FamilyMember{}, notFound(memberID)
	}
	if err != nil {
		return domain.FamilyMember{}, domain.NewError(domain.CodeInternal, "failed to load member", err)
	}
	return m, nil
}

func (d *FamilyDirectory) Add(ctx context.Context, subjectID string, m domain.FamilyMember) error {
	_, err := d.db.Exec(ctx,
		`WITH cleared AS (
		     UPDATE family_members SET is_primary_contact = FALSE
		     WHERE subject_id = $1 AND member_id <> $2 AND $6::boolean AND is_primary_contact
		     RETURNING member_id
		 )
		 INSERT INTO family_members (subject_id, member_id, display_name, relation, phone, is_primary_contact, has_location_access)
		 SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::boolean, $7::boolean
		 FROM (SELECT COUNT(*) FROM cleared) AS c`,
		subjectID,
		m.MemberID,
		m.DisplayName,
		m.Relation,
		m.Phone,
		m.IsPrimaryContact,
		m.HasLocationAccess,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "family_members_pkey" {
		return domain.NewError(domain.CodeValidation, "member "+m.MemberID+" is already in the circle", err)
	}
	if err != nil {
		return domain.NewError(domain.CodeInternal, "failed to add member", err)
	}
	return nil
}

func (d *FamilyDirectory) Update(ctx context.Context, subjectID string, m domain.FamilyMember) error {
	tag, err := d.db.Exec(ctx,
		`WITH cleared AS (
		     UPDATE family_members SET is_primary_contact = FALSE
		     WHERE subject_id = $1 AND member_id <> $2 AND $6::boolean AND is_primary_contact
		       AND EXISTS (SELECT 1 FROM family_members WHERE subject_id = $1 AND member_id = $2)
		     RETURNING member_id
		 )
		 UPDATE family_members
		 SET display_name = $3, relation = $4, phone = $5, is_primary_contact = $6, has_location_access = $7
		 WHERE subject_id = $1 AND member_id = $2 AND (SELECT COUNT(*) FROM cleared) >= 0`,
		subjectID,
		m.MemberID,
		m.DisplayName,
		m.Relation,
		m.Phone,
		m.IsPrimaryContact,
		m.HasLocationAccess,
	)
	if err != nil {
		return domain.NewError(domain.CodeInternal, "failed to update member", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(m.MemberID)
	}
	return nil
}

func (d *FamilyDirectory) Remove(ctx context.Context, subjectID, memberID string) error {
	tag, err := d.db.Exec(ctx,
		`DELETE FROM family_members WHERE subject_id = $1 AND member_id = $2`,
		subjectID, memberID,
	)
	if err != nil {
		return domain.NewError(domain.CodeInternal, "failed to remove member", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(memberID)
	}
	return nil
}

func notFound(memberID string) error {
	return domain.NewError(domain.CodeNotFound, "member "+memberID+" not found", domain.ErrNotFound)
}
