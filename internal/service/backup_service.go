package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
)

const backupVersion = "1.0"

// BackupData represents the complete membership export
type BackupData struct {
	Version          string                  `json:"version"`
	ExportedAt       time.Time               `json:"exported_at"`
	DatabaseType     string                  `json:"database_type"`
	Sites            []SiteBackup            `json:"sites"`
	Members          []MemberBackup          `json:"members"`
	Payments         []PaymentBackup         `json:"payments"`
	TemporaryMembers []TemporaryMemberBackup `json:"temporary_members"`
}

type SiteBackup struct {
	ID     int64  `json:"id"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
}

// MemberBackup is a member with its contact details and memberships
type MemberBackup struct {
	ID           int64              `json:"id"`
	UserID       *int64             `json:"user_id,omitempty"`
	Number       int64              `json:"number"`
	Name         string             `json:"name"`
	SortName     string             `json:"sort_name"`
	RefName      string             `json:"ref_name"`
	Title        string             `json:"title,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	PrivateNotes string             `json:"private_notes,omitempty"`
	Address      string             `json:"address,omitempty"`
	Postcode     string             `json:"postcode,omitempty"`
	Suburb       string             `json:"suburb,omitempty"`
	State        string             `json:"state,omitempty"`
	Country      string             `json:"country"`
	Year         int                `json:"year,omitempty"`
	DOB          string             `json:"dob,omitempty"`
	IsCurrent    bool               `json:"is_current"`
	Key          string             `json:"key"`
	LegacySource string             `json:"legacy_source,omitempty"`
	SiteID       int64              `json:"site_id"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Emails       []string           `json:"emails"`
	Phones       []string           `json:"phones"`
	Memberships  []MembershipBackup `json:"memberships"`
}

type MembershipBackup struct {
	ID         int64       `json:"id"`
	MemberType string      `json:"member_type"`
	Special    string      `json:"special,omitempty"`
	ValidFrom  string      `json:"valid_from"`
	ValidUntil string      `json:"valid_until,omitempty"`
	Note       string      `json:"note,omitempty"`
	Tags       []TagBackup `json:"tags"`
}

type TagBackup struct {
	ID          int64     `json:"id"`
	GivenByID   int64     `json:"given_by_id"`
	GivenByName string    `json:"given_by_name"`
	GivenAt     time.Time `json:"given_at"`
	GivenTag    bool      `json:"given_tag"`
	GivenCard   bool      `json:"given_card"`
}

type PaymentBackup struct {
	ID            int64     `json:"id"`
	MemberID      int64     `json:"member_id"`
	PaymentMethod string    `json:"payment_method"`
	PaymentRef    string    `json:"payment_ref,omitempty"`
	AmountPaid    string    `json:"amount_paid"`
	CreatedAt     time.Time `json:"created_at"`
}

type TemporaryMemberBackup struct {
	ID                    int64      `json:"id"`
	CreatedAt             time.Time  `json:"created_at"`
	IsChecked             bool       `json:"is_checked"`
	IsApprovedPaid        bool       `json:"is_approved_paid"`
	ApprovedPaymentMethod string     `json:"approved_payment_method,omitempty"`
	ApprovedBy            *int64     `json:"approved_by,omitempty"`
	ApprovedAt            *time.Time `json:"approved_at,omitempty"`
	PaymentMethod         string     `json:"payment_method,omitempty"`
	PaymentSource         string     `json:"payment_source,omitempty"`
	MemberID              *int64     `json:"member_id,omitempty"`
	MemberType            string     `json:"member_type"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	Suburb                string     `json:"suburb,omitempty"`
	Postcode              string     `json:"postcode,omitempty"`
	State                 string     `json:"state,omitempty"`
	SurveyGames           string     `json:"survey_games,omitempty"`
	SurveyFood            string     `json:"survey_food,omitempty"`
	SurveyHear            string     `json:"survey_hear,omitempty"`
	SurveySuggestions     string     `json:"survey_suggestions,omitempty"`
}

// BackupService exports the membership data as JSON
type BackupService struct {
	db  *database.DB
	now func() time.Time
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB) *BackupService {
	return &BackupService{db: db, now: time.Now}
}

// Export writes a complete export to outputPath
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, file); err != nil {
		return err
	}
	return file.Close()
}

// ExportToWriter writes a complete export to w. All rows are read in one
// transaction so the export is a consistent snapshot.
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) (err error) {
	ctx, span := startSpan(ctx, "BackupService.Export")
	defer func() { endSpan(span, err) }()

	backup := &BackupData{
		Version:      backupVersion,
		ExportedAt:   s.now().UTC(),
		DatabaseType: s.db.Dialect.DriverName(),
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := s.exportSites(ctx, tx, backup); err != nil {
			return fmt.Errorf("failed to export sites: %w", err)
		}
		if err := s.exportMembers(ctx, tx, backup); err != nil {
			return fmt.Errorf("failed to export members: %w", err)
		}
		if err := s.exportPayments(ctx, tx, backup); err != nil {
			return fmt.Errorf("failed to export payments: %w", err)
		}
		if err := s.exportTemporaryMembers(ctx, tx, backup); err != nil {
			return fmt.Errorf("failed to export temporary members: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	slog.InfoContext(ctx, "export complete",
		"sites", len(backup.Sites),
		"members", len(backup.Members),
		"payments", len(backup.Payments),
		"temporary_members", len(backup.TemporaryMembers))
	return nil
}

func (s *BackupService) exportSites(ctx context.Context, tx database.DBTX, backup *BackupData) error {
	sites, err := repository.NewSiteRepository(tx).ListSites(ctx)
	if err != nil {
		return err
	}
	backup.Sites = make([]SiteBackup, len(sites))
	for i, site := range sites {
		backup.Sites[i] = SiteBackup{ID: site.ID, Domain: site.Domain, Name: site.Name}
	}
	return nil
}

func (s *BackupService) exportMembers(ctx context.Context, tx database.DBTX, backup *BackupData) error {
	members, err := repository.NewMemberRepository(tx).ListMembers(ctx, repository.MemberFilter{})
	if err != nil {
		return err
	}
	contacts := repository.NewContactRepository(tx)
	memberships := repository.NewMembershipRepository(tx)

	backup.Members = make([]MemberBackup, 0, len(members))
	for i := range members {
		m := &members[i]
		mb := newMemberBackup(m)

		emails, err := contacts.GetMemberEmails(ctx, m.ID)
		if err != nil {
			return err
		}
		for _, e := range emails {
			mb.Emails = append(mb.Emails, e.Email)
		}
		phones, err := contacts.GetMemberPhones(ctx, m.ID)
		if err != nil {
			return err
		}
		for _, p := range phones {
			mb.Phones = append(mb.Phones, p.Phone)
		}

		list, err := memberships.GetMemberMemberships(ctx, m.ID)
		if err != nil {
			return err
		}
		for j := range list {
			msb := newMembershipBackup(&list[j])
			tags, err := memberships.GetMembershipTags(ctx, list[j].ID)
			if err != nil {
				return err
			}
			for _, tag := range tags {
				msb.Tags = append(msb.Tags, TagBackup{
					ID:          tag.ID,
					GivenByID:   tag.GivenByID,
					GivenByName: tag.GivenByName,
					GivenAt:     tag.GivenAt,
					GivenTag:    tag.GivenTag,
					GivenCard:   tag.GivenCard,
				})
			}
			mb.Memberships = append(mb.Memberships, msb)
		}

		backup.Members = append(backup.Members, mb)
	}
	return nil
}

func (s *BackupService) exportPayments(ctx context.Context, tx database.DBTX, backup *BackupData) error {
	payments, err := repository.NewPaymentRepository(tx).GetAllPayments(ctx)
	if err != nil {
		return err
	}
	backup.Payments = make([]PaymentBackup, len(payments))
	for i, p := range payments {
		backup.Payments[i] = PaymentBackup{
			ID:            p.ID,
			MemberID:      p.MemberID,
			PaymentMethod: p.PaymentMethod,
			PaymentRef:    p.PaymentRef,
			AmountPaid:    p.AmountPaid.StringFixed(2),
			CreatedAt:     p.CreatedAt,
		}
	}
	return nil
}

func (s *BackupService) exportTemporaryMembers(ctx context.Context, tx database.DBTX, backup *BackupData) error {
	temps, err := repository.NewTemporaryMemberRepository(tx).ListTemporaryMembers(ctx, repository.TemporaryMemberFilter{})
	if err != nil {
		return err
	}
	backup.TemporaryMembers = make([]TemporaryMemberBackup, len(temps))
	for i, t := range temps {
		backup.TemporaryMembers[i] = TemporaryMemberBackup{
			ID:                    t.ID,
			CreatedAt:             t.CreatedAt,
			IsChecked:             t.IsChecked,
			IsApprovedPaid:        t.IsApprovedPaid,
			ApprovedPaymentMethod: t.ApprovedPaymentMethod,
			ApprovedBy:            t.ApprovedBy,
			ApprovedAt:            t.ApprovedAt,
			PaymentMethod:         t.PaymentMethod,
			PaymentSource:         t.PaymentSource,
			MemberID:              t.MemberID,
			MemberType:            t.MemberType,
			Name:                  t.Name,
			Email:                 t.Email,
			Phone:                 t.Phone,
			Suburb:                t.Suburb,
			Postcode:              t.Postcode,
			State:                 t.State,
			SurveyGames:           t.SurveyGames,
			SurveyFood:            t.SurveyFood,
			SurveyHear:            t.SurveyHear,
			SurveySuggestions:     t.SurveySuggestions,
		}
	}
	return nil
}

func newMemberBackup(m *models.Member) MemberBackup {
	mb := MemberBackup{
		ID:           m.ID,
		UserID:       m.UserID,
		Number:       m.Number,
		Name:         m.Name,
		SortName:     m.SortName,
		RefName:      m.RefName,
		Title:        m.Title,
		Notes:        m.Notes,
		PrivateNotes: m.PrivateNotes,
		Address:      m.Address,
		Postcode:     m.Postcode,
		Suburb:       m.Suburb,
		State:        m.State,
		Country:      m.Country,
		Year:         m.Year,
		IsCurrent:    m.IsCurrent,
		Key:          m.Key,
		LegacySource: m.LegacySource,
		SiteID:       m.SiteID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Emails:       []string{},
		Phones:       []string{},
		Memberships:  []MembershipBackup{},
	}
	if m.DOB != nil {
		mb.DOB = models.FormatDate(*m.DOB)
	}
	return mb
}

func newMembershipBackup(ms *models.Membership) MembershipBackup {
	b := MembershipBackup{
		ID:         ms.ID,
		MemberType: ms.MemberType,
		Special:    ms.Special,
		ValidFrom:  models.FormatDate(ms.ValidFrom),
		Note:       ms.Note,
		Tags:       []TagBackup{},
	}
	if ms.ValidUntil != nil {
		b.ValidUntil = models.FormatDate(*ms.ValidUntil)
	}
	return b
}
