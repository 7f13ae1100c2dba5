package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stablepay/layer2/pkg/layer2"
)

type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordSubmitted RecordStatus = "submitted"
	RecordCommitted RecordStatus = "committed"
	RecordVerified  RecordStatus = "verified"
	RecordFailed    RecordStatus = "failed"
)

// ErrRecordNotFound is returned when no journal record matches an id.
var ErrRecordNotFound = errors.New("journal record not found")

// OperationRecord journals one operation from submission to verification.
type OperationRecord struct {
	ID          uuid.UUID            `gorm:"type:uuid;primaryKey"`
	Vendor      string               `gorm:"column:vendor;not null"`
	Network     string               `gorm:"column:network;not null"`
	Wallet      string               `gorm:"column:wallet;not null;index"`
	Type        layer2.OperationType `gorm:"column:operation_type;not null"`
	ToAddress   string               `gorm:"column:to_address;not null"`
	Amount      string               `gorm:"column:amount;not null"`
	Fee         string               `gorm:"column:fee"`
	TokenSymbol string               `gorm:"column:token_symbol;not null"`
	Status      RecordStatus         `gorm:"column:status;not null;index"`
	TxHash      string               `gorm:"column:tx_hash"`
	BlockNumber uint64               `gorm:"column:block_number"`
	Retries     int                  `gorm:"column:retry_count;default:0"`
	Error       string               `gorm:"column:last_error;type:text"`
	Payload     datatypes.JSON       `gorm:"column:payload;type:text"`
	CreatedAt   time.Time            `gorm:"column:created_at"`
	UpdatedAt   time.Time            `gorm:"column:updated_at"`
}

func (OperationRecord) TableName() string {
	return "operation_records"
}

// Operation rebuilds the journaled operation.
func (r *OperationRecord) Operation() (layer2.Operation, error) {
	var op layer2.Operation
	if err := json.Unmarshal(r.Payload, &op); err != nil {
		return op, fmt.Errorf("unmarshal operation payload: %w", err)
	}
	return op, nil
}

// CreateRecord journals op as pending before it is submitted.
func CreateRecord(tx *gorm.DB, vendor layer2.Vendor, network layer2.Network, wallet string, op layer2.Operation) (*OperationRecord, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal operation: %w", err)
	}

	now := time.Now()
	record := &OperationRecord{
		ID:          uuid.New(),
		Vendor:      string(vendor),
		Network:     string(network),
		Wallet:      wallet,
		Type:        op.Type,
		ToAddress:   op.ToAddress,
		Amount:      op.Amount,
		Fee:         op.Fee,
		TokenSymbol: op.TokenSymbol,
		Status:      RecordPending,
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *OperationRecord) Submitted(tx *gorm.DB, txHash string) error {
	r.Status = RecordSubmitted
	r.TxHash = txHash
	r.Error = ""
	r.UpdatedAt = time.Now()
	return tx.Save(r).Error
}

// Committed records the committed receipt. A verified record stays verified.
func (r *OperationRecord) Committed(tx *gorm.DB, receipt layer2.Receipt) error {
	if r.Status != RecordVerified {
		r.Status = RecordCommitted
	}
	r.applyReceipt(receipt)
	return tx.Save(r).Error
}

func (r *OperationRecord) Verified(tx *gorm.DB, receipt layer2.Receipt) error {
	r.Status = RecordVerified
	r.applyReceipt(receipt)
	return tx.Save(r).Error
}

func (r *OperationRecord) applyReceipt(receipt layer2.Receipt) {
	if receipt.TxHash != "" {
		r.TxHash = receipt.TxHash
	}
	if receipt.BlockNumber != 0 {
		r.BlockNumber = receipt.BlockNumber
	}
	r.Error = ""
	r.UpdatedAt = time.Now()
}

func (r *OperationRecord) Fail(tx *gorm.DB, err string) error {
	r.Status = RecordFailed
	r.Error = err
	r.UpdatedAt = time.Now()
	return tx.Save(r).Error
}

// RecordAttempt notes a failed receipt check that will be retried.
func (r *OperationRecord) RecordAttempt(tx *gorm.DB, attemptErr string) error {
	r.Retries++
	r.Error = attemptErr
	r.UpdatedAt = time.Now()
	return tx.Save(r).Error
}

// RecordFilter narrows ListRecords. Zero values match everything.
type RecordFilter struct {
	Wallet   string
	Statuses []RecordStatus
	Limit    int
}

// ListRecords returns matching records, oldest first.
func ListRecords(db *gorm.DB, filter RecordFilter) ([]OperationRecord, error) {
	query := db.Model(&OperationRecord{}).Order("created_at ASC")
	if filter.Wallet != "" {
		query = query.Where("wallet = ?", filter.Wallet)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []OperationRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query operation records: %w", err)
	}
	return records, nil
}

// GetRecord loads a record by id.
func GetRecord(db *gorm.DB, id string) (*OperationRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid record id %q: %w", id, err)
	}

	var record OperationRecord
	if err := db.Where("id = ?", parsed).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, err
	}
	return &record, nil
}

// CountByStatus counts records per status.
func CountByStatus(db *gorm.DB) (map[RecordStatus]int64, error) {
	var rows []struct {
		Status RecordStatus
		Count  int64
	}
	if err := db.Model(&OperationRecord{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count operation records: %w", err)
	}
	counts := make(map[RecordStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
