package carts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/okaplan/seawatch/go/internal/errs"
	"github.com/okaplan/seawatch/go/internal/models"
)

const attachmentColumns = "id, cart_id, filename, filepath, uploaded_at"

// AddAttachment records an uploaded file against a cart.
func (r *Repository) AddAttachment(ctx context.Context, att *models.Attachment) (*models.Attachment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO attachments (id, cart_id, filename, filepath)
		VALUES ($1, $2, $3, $4)
		RETURNING `+attachmentColumns,
		att.ID, att.CartID, att.Filename, att.Filepath,
	)
	created, err := scanAttachment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to add attachment: %w", err)
	}
	return created, nil
}

// ListAttachments returns a cart's attachments, newest first.
func (r *Repository) ListAttachments(ctx context.Context, cartID uuid.UUID) ([]models.Attachment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE cart_id = $1 ORDER BY uploaded_at DESC`,
		cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var atts []models.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		atts = append(atts, *att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return atts, nil
}

func scanAttachment(row pgx.Row) (*models.Attachment, error) {
	var a models.Attachment
	if err := row.Scan(&a.ID, &a.CartID, &a.Filename, &a.Filepath, &a.UploadedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// AddAttachment validates the cart and records the file.
func (a *App) AddAttachment(ctx context.Context, cartID uuid.UUID, filename, filepath string) (*models.Attachment, error) {
	if filename == "" || filepath == "" {
		return nil, errs.Validationf("filename and filepath are required")
	}

	cart, err := a.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, errs.Internal("failed to get cart", err)
	}
	if cart == nil {
		return nil, errs.NotFoundf("cart %s not found", cartID)
	}

	att, err := a.repo.AddAttachment(ctx, &models.Attachment{
		ID:       uuid.New(),
		CartID:   cartID,
		Filename: filename,
		Filepath: filepath,
	})
	if err != nil {
		return nil, errs.Internal("failed to add attachment", err)
	}
	return att, nil
}

// Attachments lists a cart's attachments.
func (a *App) Attachments(ctx context.Context, cartID uuid.UUID) ([]models.Attachment, error) {
	cart, err := a.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, errs.Internal("failed to get cart", err)
	}
	if cart == nil {
		return nil, errs.NotFoundf("cart %s not found", cartID)
	}

	atts, err := a.repo.ListAttachments(ctx, cartID)
	if err != nil {
		return nil, errs.Internal("failed to list attachments", err)
	}
	if atts == nil {
		atts = []models.Attachment{}
	}
	return atts, nil
}
