package order

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/xenking/storefront-checkout/internal/domain/order"

// Commit outcomes, recorded as the "outcome" metric attribute.
const (
	outcomeCommitted         = "committed"
	outcomeReplayed          = "replayed"
	outcomeInvalid           = "invalid"
	outcomeInsufficientStock = "insufficient_stock"
	outcomeProductGone       = "product_gone"
	outcomeConflict          = "conflict"
	outcomeError             = "error"
)

// CommitRequest is the input of a single commit transaction. Only ProductID
// and Quantity of Items are trusted; name, price and seller are frozen from
// the ledger read inside the transaction.
type CommitRequest struct {
	CustomerID     string
	Items          []LineItem
	Billing        Billing
	PaymentMethod  PaymentMethod
	IdempotencyKey string
}

// CommitterOptions configures a Committer. Zero fields take defaults: the
// default delivery policy and the global otel providers.
type CommitterOptions struct {
	Delivery       DeliveryPolicy
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *CommitterOptions) setDefaults() {
	if o.Delivery == (DeliveryPolicy{}) {
		o.Delivery = DefaultDeliveryPolicy()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

type commitMetrics struct {
	commits  metric.Int64Counter
	attempts metric.Int64Histogram
	duration metric.Float64Histogram
}

// Committer runs the order commit transaction: re-read stock for every line,
// reject the whole cart if any line cannot be covered, otherwise decrement
// every line and insert the order, all in one Store transaction.
type Committer struct {
	store    Store
	delivery DeliveryPolicy
	tracer   trace.Tracer
	metrics  commitMetrics
}

// NewCommitter creates a Committer over store.
func NewCommitter(store Store, opts CommitterOptions) (*Committer, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter(instrumentationName)
	var (
		m   commitMetrics
		err error
	)
	if m.commits, err = meter.Int64Counter("checkout.commits",
		metric.WithDescription("Commit transactions by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "commits counter")
	}
	if m.attempts, err = meter.Int64Histogram("checkout.commit.attempts",
		metric.WithDescription("Transaction attempts per commit"),
	); err != nil {
		return nil, errors.Wrap(err, "attempts histogram")
	}
	if m.duration, err = meter.Float64Histogram("checkout.commit.duration",
		metric.WithDescription("Commit latency including retries"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	return &Committer{
		store:    store,
		delivery: opts.Delivery,
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
		metrics:  m,
	}, nil
}

// Commit places the order described by req. It returns the committed order,
// or, when req carries an idempotency key already used by the same
// customer, the order committed under that key.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (_ *Order, rerr error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "order.Commit",
		trace.WithAttributes(
			attribute.String("customer.id", req.CustomerID),
			attribute.Int("order.lines", len(req.Items)),
		),
	)
	var (
		attempts int
		outcome  = outcomeError
	)
	defer func() {
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		c.metrics.commits.Add(ctx, 1, attrs)
		c.metrics.attempts.Record(ctx, int64(attempts), attrs)
		c.metrics.duration.Record(ctx, time.Since(start).Seconds(), attrs)

		span.SetAttributes(
			attribute.Int("tx.attempts", attempts),
			attribute.String("outcome", outcome),
		)
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	lines := make([]CartLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = CartLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	lines, err := mergeLines(lines)
	if err != nil {
		outcome = outcomeInvalid
		return nil, err
	}

	// Sorted ids give every transaction the same lock order.
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	sort.Strings(ids)

	var (
		placed   *Order
		replayed bool
	)
	err = c.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		placed, replayed = nil, false

		if req.IdempotencyKey != "" {
			prev, err := tx.FindOrderByIdempotencyKey(ctx, req.CustomerID, req.IdempotencyKey)
			if err != nil {
				return errors.Wrap(err, "find by idempotency key")
			}
			if prev != nil {
				placed, replayed = prev, true
				return nil
			}
		}

		current, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "lock products")
		}

		items := make([]LineItem, len(lines))
		for i, l := range lines {
			p, ok := current[l.ProductID]
			if !ok {
				return &ProductGoneError{ProductID: l.ProductID}
			}
			if !p.Available(l.Quantity) {
				return &InsufficientStockError{
					ProductID: l.ProductID,
					Requested: l.Quantity,
					Available: p.Stock,
				}
			}
			items[i] = freeze(p, l.Quantity)
		}

		for _, it := range items {
			if err := tx.SetStock(ctx, it.ProductID, current[it.ProductID].Stock-it.Quantity); err != nil {
				return errors.Wrapf(err, "set stock %s", it.ProductID)
			}
		}

		o := c.newOrder(req, items)
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		placed = o
		return nil
	})

	lg := zctx.From(ctx).With(
		zap.String("customer_id", req.CustomerID),
		zap.Int("attempts", attempts),
	)
	if err != nil {
		var (
			stockErr *InsufficientStockError
			goneErr  *ProductGoneError
		)
		switch {
		case errors.As(err, &stockErr):
			outcome = outcomeInsufficientStock
			lg.Info("Checkout rejected",
				zap.String("product_id", stockErr.ProductID),
				zap.Int64("requested", stockErr.Requested),
				zap.Int64("available", stockErr.Available),
			)
		case errors.As(err, &goneErr):
			outcome = outcomeProductGone
			lg.Info("Checkout rejected", zap.String("product_id", goneErr.ProductID), zap.Error(err))
		case errors.Is(err, ErrCommitConflict):
			outcome = outcomeConflict
			lg.Warn("Checkout conflict", zap.Error(err))
		}
		return nil, err
	}

	if replayed {
		outcome = outcomeReplayed
		lg.Info("Checkout replayed", zap.String("order_id", placed.ID))
		return placed, nil
	}

	outcome = outcomeCommitted
	span.SetAttributes(attribute.String("order.id", placed.ID))
	lg.Info("Order committed",
		zap.String("order_id", placed.ID),
		zap.Stringer("total", placed.TotalAmount),
	)
	return placed, nil
}

func (c *Committer) newOrder(req CommitRequest, items []LineItem) *Order {
	itemsTotal := ItemsTotal(items)
	delivery := c.delivery.Charge(items)

	return &Order{
		ID:             uuid.New().String(),
		CustomerID:     req.CustomerID,
		Items:          items,
		ItemsTotal:     itemsTotal.Round(2),
		DeliveryCharge: delivery.Round(2),
		TotalAmount:    itemsTotal.Add(delivery).Round(2),
		Status:         StatusPending,
		Billing:        req.Billing,
		PaymentMethod:  req.PaymentMethod,
		SellerID:       items[0].SellerID,
		IdempotencyKey: req.IdempotencyKey,
	}
}
