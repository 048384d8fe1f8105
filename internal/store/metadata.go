package store

import (
	"context"
	"database/sql"

	"github.com/puhuaqiang/db-query-tool/internal/database"
	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
)

type labelKey struct {
	table, field string
}

// replaceMetadata deletes every stored table of connID and inserts tables in
// their place. Must run inside a transaction.
func replaceMetadata(ctx context.Context, tx *sql.Tx, connID int64, tables []database.TableDescriptor) error {
	labels, err := existingLabels(ctx, tx, connID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM table_metadata WHERE connection_id = ?`, connID); err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to clear metadata")
	}

	insertTable, err := tx.PrepareContext(ctx,
		`INSERT INTO table_metadata (connection_id, name, kind, label) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to prepare table insert")
	}
	defer func() { _ = insertTable.Close() }()

	insertField, err := tx.PrepareContext(ctx, `
		INSERT INTO field_metadata (table_id, position, name, data_type, is_nullable, default_value, max_length, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to prepare field insert")
	}
	defer func() { _ = insertField.Close() }()

	for _, t := range tables {
		res, err := insertTable.ExecContext(ctx, connID, t.Name, string(t.Kind), labels[labelKey{table: t.Name}])
		if err != nil {
			return dberrors.Wrapf(err, dberrors.ErrTypeStorage, "failed to store table %s", t.Name)
		}
		tableID, err := res.LastInsertId()
		if err != nil {
			return dberrors.Wrapf(err, dberrors.ErrTypeStorage, "failed to store table %s", t.Name)
		}

		for pos, f := range t.Fields {
			_, err := insertField.ExecContext(ctx,
				tableID, pos, f.Name, f.DataType, f.Nullable,
				nullString(f.Default), nullInt64(f.MaxLength),
				labels[labelKey{table: t.Name, field: f.Name}])
			if err != nil {
				return dberrors.Wrapf(err, dberrors.ErrTypeStorage, "failed to store field %s.%s", t.Name, f.Name)
			}
		}
	}
	return nil
}

// existingLabels collects the labels currently set on a connection's tables
// (empty field name) and fields.
func existingLabels(ctx context.Context, tx *sql.Tx, connID int64) (map[labelKey]sql.NullString, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT t.name, t.label, '' AS field, NULL AS field_label
		FROM table_metadata t
		WHERE t.connection_id = ? AND t.label IS NOT NULL
		UNION ALL
		SELECT t.name, NULL, f.name, f.label
		FROM field_metadata f
		JOIN table_metadata t ON f.table_id = t.id
		WHERE t.connection_id = ? AND f.label IS NOT NULL`, connID, connID)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to read labels")
	}
	defer func() { _ = rows.Close() }()

	labels := map[labelKey]sql.NullString{}
	for rows.Next() {
		var (
			table, field           string
			tableLabel, fieldLabel sql.NullString
		)
		if err := rows.Scan(&table, &tableLabel, &field, &fieldLabel); err != nil {
			return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to read labels")
		}
		if field == "" {
			labels[labelKey{table: table}] = tableLabel
		} else {
			labels[labelKey{table: table, field: field}] = fieldLabel
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to read labels")
	}
	return labels, nil
}

// ConnectionDetail returns a connection with all of its stored tables and
// fields, tables ordered by name and fields by position.
func (s *Store) ConnectionDetail(ctx context.Context, name string) (*ConnectionDetail, error) {
	conn, err := s.GetConnection(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.kind, t.label,
			f.id, f.name, f.data_type, f.is_nullable, f.default_value, f.max_length, f.label
		FROM table_metadata t
		LEFT JOIN field_metadata f ON f.table_id = t.id
		WHERE t.connection_id = ?
		ORDER BY t.name, f.position`, conn.ID)
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to read metadata")
	}
	defer func() { _ = rows.Close() }()

	detail := &ConnectionDetail{Connection: *conn, Tables: []TableRecord{}}
	for rows.Next() {
		var (
			tableID    int64
			tableName  string
			kind       string
			tableLabel sql.NullString
			fieldID    sql.NullInt64
			fieldName  sql.NullString
			dataType   sql.NullString
			nullable   sql.NullBool
			def        sql.NullString
			maxLength  sql.NullInt64
			fieldLabel sql.NullString
		)
		if err := rows.Scan(&tableID, &tableName, &kind, &tableLabel,
			&fieldID, &fieldName, &dataType, &nullable, &def, &maxLength, &fieldLabel); err != nil {
			return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to scan metadata")
		}

		last := len(detail.Tables) - 1
		if last < 0 || detail.Tables[last].ID != tableID {
			detail.Tables = append(detail.Tables, TableRecord{
				ID:     tableID,
				Name:   tableName,
				Kind:   database.TableKind(kind),
				Label:  stringPtr(tableLabel),
				Fields: []FieldRecord{},
			})
			last++
		}

		if !fieldID.Valid {
			continue
		}
		detail.Tables[last].Fields = append(detail.Tables[last].Fields, FieldRecord{
			ID:        fieldID.Int64,
			Name:      fieldName.String,
			DataType:  dataType.String,
			Nullable:  nullable.Bool,
			Default:   stringPtr(def),
			MaxLength: int64Ptr(maxLength),
			Label:     stringPtr(fieldLabel),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeStorage, "failed to read metadata")
	}
	return detail, nil
}
