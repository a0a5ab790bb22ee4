package document

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// Collection documents. Field names follow the relational column names so
// both backends answer the same queries. Nullable columns are pointers and
// stored as BSON null.

type categoryDoc struct {
	ID          int64      `bson:"_id"`
	Name        string     `bson:"name"`
	Description *string    `bson:"description"`
	CreatedAt   *time.Time `bson:"created_at"`
}

type productDoc struct {
	ID            int64                `bson:"_id"`
	Name          string               `bson:"name"`
	CategoryID    *int64               `bson:"category_id"`
	Description   *string              `bson:"description"`
	Price         primitive.Decimal128 `bson:"price"`
	StockQuantity int64                `bson:"stock_quantity"`
	TotalSold     int64                `bson:"total_sold"`
	SKU           *string              `bson:"sku"`
	IsActive      bool                 `bson:"is_active"`
	CreatedAt     *time.Time           `bson:"created_at"`
}

type userDoc struct {
	ID        int64      `bson:"_id"`
	Email     *string    `bson:"email"`
	Name      *string    `bson:"name"`
	Phone     *string    `bson:"phone"`
	IsActive  bool       `bson:"is_active"`
	CreatedAt *time.Time `bson:"created_at"`
}

type orderDoc struct {
	ID              int64                `bson:"_id"`
	OrderNumber     string               `bson:"order_number"`
	CustomerName    *string              `bson:"customer_name"`
	CustomerEmail   *string              `bson:"customer_email"`
	CustomerPhone   *string              `bson:"customer_phone"`
	Status          string               `bson:"status"`
	TotalAmount     primitive.Decimal128 `bson:"total_amount"`
	ShippingAddress *string              `bson:"shipping_address"`
	TrackingNumber  *string              `bson:"tracking_number"`
	CreatedAt       *time.Time           `bson:"created_at"`
}

type orderItemDoc struct {
	ID         int64                `bson:"_id"`
	OrderID    int64                `bson:"order_id"`
	ProductID  int64                `bson:"product_id"`
	Quantity   int64                `bson:"quantity"`
	UnitPrice  primitive.Decimal128 `bson:"unit_price"`
	TotalPrice primitive.Decimal128 `bson:"total_price"`
}

type conversationDoc struct {
	ID             int64      `bson:"_id"`
	SessionID      string     `bson:"session_id"`
	UserID         *int64     `bson:"user_id"`
	UserIdentifier *string    `bson:"user_identifier"`
	Channel        string     `bson:"channel"`
	StartedAt      *time.Time `bson:"started_at"`
	EndedAt        *time.Time `bson:"ended_at"`
	IsActive       bool       `bson:"is_active"`
	Metadata       any        `bson:"metadata"`
}

type messageDoc struct {
	ID                int64                 `bson:"_id"`
	ConversationID    int64                 `bson:"conversation_id"`
	Sender            string                `bson:"sender"`
	Message           string                `bson:"message"`
	MessageType       string                `bson:"message_type"`
	Timestamp         *time.Time            `bson:"timestamp"`
	SequenceNumber    int64                 `bson:"sequence_number"`
	Intent            *string               `bson:"intent"`
	Entities          any                   `bson:"entities"`
	ConfidenceScore   *primitive.Decimal128 `bson:"confidence_score"`
	Context           any                   `bson:"context"`
	BotResponseTimeMs *int64                `bson:"bot_response_time_ms"`
	RelatedOrderID    *int64                `bson:"related_order_id"`
	RelatedProductID  *int64                `bson:"related_product_id"`
}

// toDocument converts a normalized record into its collection document.
func toDocument(id int64, rec ingest.Record) (any, error) {
	switch r := rec.(type) {
	case *ingest.Category:
		return categoryDoc{
			ID:          id,
			Name:        r.Name,
			Description: textPtr(r.Description),
			CreatedAt:   timePtr(r.CreatedAt),
		}, nil

	case *ingest.Product:
		price, err := decimal(r.Price)
		if err != nil {
			return nil, err
		}
		return productDoc{
			ID:            id,
			Name:          r.Name,
			CategoryID:    int8Ptr(r.CategoryID),
			Description:   textPtr(r.Description),
			Price:         price,
			StockQuantity: r.StockQuantity,
			TotalSold:     r.TotalSold,
			SKU:           textPtr(r.SKU),
			IsActive:      r.IsActive,
			CreatedAt:     timePtr(r.CreatedAt),
		}, nil

	case *ingest.User:
		return userDoc{
			ID:        id,
			Email:     textPtr(r.Email),
			Name:      textPtr(r.Name),
			Phone:     textPtr(r.Phone),
			IsActive:  r.IsActive,
			CreatedAt: timePtr(r.CreatedAt),
		}, nil

	case *ingest.Order:
		total, err := decimal(r.TotalAmount)
		if err != nil {
			return nil, err
		}
		return orderDoc{
			ID:              id,
			OrderNumber:     r.OrderNumber,
			CustomerName:    textPtr(r.CustomerName),
			CustomerEmail:   textPtr(r.CustomerEmail),
			CustomerPhone:   textPtr(r.CustomerPhone),
			Status:          r.Status,
			TotalAmount:     total,
			ShippingAddress: textPtr(r.ShippingAddress),
			TrackingNumber:  textPtr(r.TrackingNumber),
			CreatedAt:       timePtr(r.CreatedAt),
		}, nil

	case *ingest.OrderItem:
		unit, err := decimal(r.UnitPrice)
		if err != nil {
			return nil, err
		}
		total, err := decimal(multiply(r.UnitPrice, r.Quantity))
		if err != nil {
			return nil, err
		}
		return orderItemDoc{
			ID:         id,
			OrderID:    r.OrderID,
			ProductID:  r.ProductID,
			Quantity:   r.Quantity,
			UnitPrice:  unit,
			TotalPrice: total,
		}, nil

	case *ingest.Conversation:
		metadata, err := jsonValue(r.Metadata)
		if err != nil {
			return nil, err
		}
		return conversationDoc{
			ID:             id,
			SessionID:      r.SessionID,
			UserID:         int8Ptr(r.UserID),
			UserIdentifier: textPtr(r.UserIdentifier),
			Channel:        r.Channel,
			StartedAt:      timePtr(r.StartedAt),
			EndedAt:        timePtr(r.EndedAt),
			IsActive:       r.IsActive,
			Metadata:       metadata,
		}, nil

	case *ingest.Message:
		entities, err := jsonValue(r.Entities)
		if err != nil {
			return nil, err
		}
		msgContext, err := jsonValue(r.Context)
		if err != nil {
			return nil, err
		}
		doc := messageDoc{
			ID:                id,
			ConversationID:    r.ConversationID,
			Sender:            r.Sender,
			Message:           r.Text,
			MessageType:       r.MessageType,
			Timestamp:         timePtr(r.Timestamp),
			SequenceNumber:    r.SequenceNumber,
			Intent:            textPtr(r.Intent),
			Entities:          entities,
			Context:           msgContext,
			BotResponseTimeMs: int8Ptr(r.ResponseTimeMs),
			RelatedOrderID:    int8Ptr(r.RelatedOrderID),
			RelatedProductID:  int8Ptr(r.RelatedProductID),
		}
		if r.ConfidenceScore.Valid {
			score, err := decimal(r.ConfidenceScore)
			if err != nil {
				return nil, err
			}
			doc.ConfidenceScore = &score
		}
		return doc, nil
	}
	return nil, fmt.Errorf("no document mapping for %T", rec)
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func int8Ptr(i pgtype.Int8) *int64 {
	if !i.Valid {
		return nil
	}
	return &i.Int64
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// decimal converts a numeric to Decimal128. An invalid numeric is zero.
func decimal(n pgtype.Numeric) (primitive.Decimal128, error) {
	if !n.Valid {
		return primitive.NewDecimal128(0, 0), nil
	}
	v, err := n.Value()
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode numeric: %w", err)
	}
	s, ok := v.(string)
	if !ok {
		return primitive.Decimal128{}, fmt.Errorf("encode numeric: unexpected %T", v)
	}
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode numeric %q: %w", s, err)
	}
	return d, nil
}

// multiply scales n by an integer quantity without leaving decimal arithmetic.
func multiply(n pgtype.Numeric, qty int64) pgtype.Numeric {
	if !n.Valid || n.Int == nil {
		return pgtype.Numeric{Int: big.NewInt(0), Valid: true}
	}
	return pgtype.Numeric{
		Int:   new(big.Int).Mul(n.Int, big.NewInt(qty)),
		Exp:   n.Exp,
		Valid: true,
	}
}

// jsonValue decodes a JSON cell into values the BSON encoder stores as
// embedded documents and arrays.
func jsonValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}
