package orders

import (
	"time"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/lifecycle"
)

// Decision types for manual status changes.
const (
	DecisionCourtesy       = "CORTESIA"
	DecisionWeightAdjust   = "AJUSTE_PESO"
	DecisionStatusOverride = "OVERRIDE_ESTADO"
	DecisionManualCancel   = "CANCELACION_MANUAL"
)

// CustomerInfo is the delivery contact persisted with an order.
type CustomerInfo struct {
	Name         string `json:"customerName" dynamodbav:"name"`
	Phone        string `json:"customerPhone" dynamodbav:"phone"`
	Address      string `json:"customerAddress" dynamodbav:"address"`
	Neighborhood string `json:"neighborhood,omitempty" dynamodbav:"neighborhood,omitempty"`
	City         string `json:"city" dynamodbav:"city"`
	Notes        string `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	DeliveryDate string `json:"deliveryDate,omitempty" dynamodbav:"delivery_date,omitempty"`
	DeliveryTime string `json:"deliveryTime,omitempty" dynamodbav:"delivery_time,omitempty"`
}

// Item is an ordered line.
type Item struct {
	ProductID      string  `json:"id" dynamodbav:"product_id"`
	Name           string  `json:"name" dynamodbav:"name"`
	PricePerKg     float64 `json:"pricePerKg" dynamodbav:"price_per_kg"`
	SelectedWeight float64 `json:"selectedWeight" dynamodbav:"selected_weight"`
	FinalPrice     float64 `json:"finalPrice" dynamodbav:"final_price"`
	Category       string  `json:"category,omitempty" dynamodbav:"category,omitempty"`
	ImageURL       string  `json:"imageUrl,omitempty" dynamodbav:"image_url,omitempty"`
}

// HistoryEntry records one applied status change.
type HistoryEntry struct {
	At            time.Time        `json:"at" dynamodbav:"at"`
	From          lifecycle.Status `json:"from" dynamodbav:"from"`
	To            lifecycle.Status `json:"to" dynamodbav:"to"`
	By            string           `json:"by" dynamodbav:"by"`
	UserID        string           `json:"userId" dynamodbav:"user_id"`
	Reason        string           `json:"reason" dynamodbav:"reason"`
	Type          string           `json:"type" dynamodbav:"type"`
	CorrelationID string           `json:"correlationId" dynamodbav:"correlation_id"`
}

// Order is the item stored in the orders table.
type Order struct {
	OrderID            string                   `json:"id" dynamodbav:"order_id"` // PK
	CustomerInfo       CustomerInfo             `json:"customerInfo" dynamodbav:"customer_info"`
	Items              []Item                   `json:"items" dynamodbav:"items"`
	Total              float64                  `json:"total" dynamodbav:"total"`
	PaymentMethod      string                   `json:"paymentMethod" dynamodbav:"payment_method"`
	Status             lifecycle.Status         `json:"status" dynamodbav:"status"`
	IdempotencyKey     string                   `json:"idempotencyKey,omitempty" dynamodbav:"idempotency_key,omitempty"`
	EstimatedCycleDays int                      `json:"estimatedCycleDays" dynamodbav:"estimated_cycle_days"`
	Reminded           bool                     `json:"reminded" dynamodbav:"reminded"`
	Source             string                   `json:"source" dynamodbav:"source"`
	CustomerIP         string                   `json:"customerIp" dynamodbav:"customer_ip"`
	UserAgent          string                   `json:"userAgent,omitempty" dynamodbav:"user_agent,omitempty"`
	CreatedAt          time.Time                `json:"createdAt" dynamodbav:"created_at"`
	ExpiresAt          time.Time                `json:"expiresAt" dynamodbav:"expires_at"`
	UpdatedAt          time.Time                `json:"updatedAt,omitempty" dynamodbav:"updated_at,omitempty"`
	UpdatedBy          string                   `json:"updatedBy,omitempty" dynamodbav:"updated_by,omitempty"`
	DeliveredAt        *time.Time               `json:"deliveredAt,omitempty" dynamodbav:"delivered_at,omitempty"`
	TransactionID      string                   `json:"transactionId,omitempty" dynamodbav:"transaction_id,omitempty"`
	Notes              string                   `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	PendingAction      *lifecycle.PendingAction `json:"pendingAction,omitempty" dynamodbav:"pending_action,omitempty"`
	History            []HistoryEntry           `json:"history,omitempty" dynamodbav:"history,omitempty"`
	Version            int64                    `json:"-" dynamodbav:"version"`
}

// ManualDecision documents an operator-forced status change. Written once,
// in the same transaction as the order change.
type ManualDecision struct {
	DecisionID     string           `dynamodbav:"decision_id"` // PK
	OrderID        string           `dynamodbav:"order_id"`
	Type           string           `dynamodbav:"type"`
	Reason         string           `dynamodbav:"reason"`
	OperatorID     string           `dynamodbav:"operator_id"`
	At             time.Time        `dynamodbav:"at"`
	PreviousStatus lifecycle.Status `dynamodbav:"previous_status"`
	NewStatus      lifecycle.Status `dynamodbav:"new_status"`
	CorrelationID  string           `dynamodbav:"correlation_id"`
}

// Product is the stock-bearing view of a catalog product.
type Product struct {
	ProductID string    `dynamodbav:"product_id"` // PK
	Name      string    `dynamodbav:"name,omitempty"`
	Stock     int64     `dynamodbav:"stock"`
	UpdatedAt time.Time `dynamodbav:"updated_at,omitempty"`
}
