package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
)

// paymentDelta is the incremental effect one status transition has on a
// weekly aggregate.
type paymentDelta struct {
	Deliveries       int
	DeliveriesAmount decimal.Decimal
	Returns          int
	ReturnsAmount    decimal.Decimal
}

func (d paymentDelta) empty() bool {
	return d.Deliveries == 0 && d.Returns == 0
}

// computePaymentDelta derives the aggregate delta for an order moving from
// oldStatus to newStatus. A delivered order contributes what the carrier
// owes the merchant (total minus delivery commission); a returned order
// contributes the return commission the merchant owes back. Leaving a state
// reverses exactly what the recorded contribution link added, because the
// order's cost fields have already been recomputed for the new status by
// the time the reversal runs.
func computePaymentDelta(order *models.Order, oldStatus, newStatus models.OrderStatus,
	prevDelivery, prevReturn *models.PaymentOrder) paymentDelta {

	var delta paymentDelta
	delta.DeliveriesAmount = decimal.Zero
	delta.ReturnsAmount = decimal.Zero

	if oldStatus == models.OrderStatusDelivered && prevDelivery != nil {
		delta.Deliveries--
		delta.DeliveriesAmount = delta.DeliveriesAmount.Sub(prevDelivery.AmountContributed)
	}
	if newStatus == models.OrderStatusDelivered {
		delta.Deliveries++
		delta.DeliveriesAmount = delta.DeliveriesAmount.Add(order.Total.Sub(order.DeliveryCost))
	}
	if oldStatus == models.OrderStatusReturned && prevReturn != nil {
		delta.Returns--
		delta.ReturnsAmount = delta.ReturnsAmount.Sub(prevReturn.AmountContributed)
	}
	if newStatus == models.OrderStatusReturned {
		delta.Returns++
		delta.ReturnsAmount = delta.ReturnsAmount.Add(order.ReturnCost)
	}
	return delta
}

// UpdatePaymentFromOrder folds one order-status transition into the
// carrier's weekly payment aggregate. Returns nil when the transition is
// payment-neutral (no carrier assigned, carrier inactive, or neither state
// affects counts). When an order leaves delivered/returned its earlier
// contribution link is removed and the inverse delta applied, so
// delivered -> returned never double-counts.
func UpdatePaymentFromOrder(tx *gorm.DB, logger *logrus.Logger, order *models.Order,
	oldStatus, newStatus models.OrderStatus) (*models.CarrierPayment, error) {

	if order.CarrierID == nil {
		return nil, nil
	}
	carrier, err := models.GetCarrierById(tx, *order.CarrierID)
	if err != nil {
		config.LogError(logger, "paymentWorkflow.go", "UpdatePaymentFromOrder", "GetCarrierById", *order.CarrierID, err)
		return nil, err
	}
	if carrier.IsActive != nil && !*carrier.IsActive {
		logger.WithFields(logrus.Fields{
			"carrier_id": carrier.CarrierID,
			"order_id":   order.OrderID,
		}).Warn("carrier inactive, skipping payment update")
		return nil, nil
	}

	var prevDelivery, prevReturn *models.PaymentOrder
	if oldStatus == models.OrderStatusDelivered {
		prevDelivery, err = models.FindContributionByOrder(tx, order.OrderID, models.ContributionTypeDelivery)
		if err != nil {
			config.LogError(logger, "paymentWorkflow.go", "UpdatePaymentFromOrder", "FindContributionByOrder delivery", order.OrderID, err)
			return nil, err
		}
	}
	if oldStatus == models.OrderStatusReturned {
		prevReturn, err = models.FindContributionByOrder(tx, order.OrderID, models.ContributionTypeReturn)
		if err != nil {
			config.LogError(logger, "paymentWorkflow.go", "UpdatePaymentFromOrder", "FindContributionByOrder return", order.OrderID, err)
			return nil, err
		}
	}

	delta := computePaymentDelta(order, oldStatus, newStatus, prevDelivery, prevReturn)
	if delta.empty() {
		return nil, nil
	}

	// Undo stale contribution links before re-adding under the new state.
	if prevDelivery != nil {
		if err := tx.Where("order_id = ? AND contribution_type = ?",
			order.OrderID, models.ContributionTypeDelivery).
			Delete(&models.PaymentOrder{}).Error; err != nil {
			config.LogError(logger, "paymentWorkflow.go", "UpdatePaymentFromOrder", "Delete delivery link", order.OrderID, err)
			return nil, err
		}
	}
	if prevReturn != nil {
		if err := tx.Where("order_id = ? AND contribution_type = ?",
			order.OrderID, models.ContributionTypeReturn).
			Delete(&models.PaymentOrder{}).Error; err != nil {
			config.LogError(logger, "paymentWorkflow.go", "UpdatePaymentFromOrder", "Delete return link", order.OrderID, err)
			return nil, err
		}
	}

	weekStart := utils.WeekStart(time.Now())
	payment, err := findOrCreatePayment(tx, logger, carrier.CarrierID, weekStart)
	if err != nil {
		return nil, err
	}

	payment.TotalDeliveries += delta.Deliveries
	payment.TotalDeliveriesAmount = payment.TotalDeliveriesAmount.Add(delta.DeliveriesAmount)
	payment.TotalReturns += delta.Returns
	payment.TotalReturnsAmount = payment.TotalReturnsAmount.Add(delta.ReturnsAmount)
	payment.NetAmount = payment.TotalDeliveriesAmount.Sub(payment.TotalReturnsAmount)
	payment.FinalAmount = payment.NetAmount.Add(payment.PreviousBalance)

	if err := tx.Model(&models.CarrierPayment{}).
		Where("payment_id = ?", payment.PaymentID).
		Updates(map[string]interface{}{
			"total_deliveries":        payment.TotalDeliveries,
			"total_deliveries_amount": payment.TotalDeliveriesAmount,
			"total_returns":           payment.TotalReturns,
			"total_returns_amount":    payment.TotalReturnsAmount,
			"net_amount":              payment.NetAmount,
			"final_amount":            payment.FinalAmount,
		}).Error; err != nil {
		config.LogError(logger, "paymentWorkflow.go", "UpdatePaymentFromOrder", "Update totals", payment.PaymentID, err)
		return nil, err
	}

	switch newStatus {
	case models.OrderStatusDelivered:
		err = createPaymentOrder(tx, logger, payment.PaymentID, order.OrderID,
			models.ContributionTypeDelivery, order.Total.Sub(order.DeliveryCost), order.Total, order.DeliveryCost)
	case models.OrderStatusReturned:
		err = createPaymentOrder(tx, logger, payment.PaymentID, order.OrderID,
			models.ContributionTypeReturn, order.ReturnCost, order.Total, order.ReturnCost)
	}
	if err != nil {
		return nil, err
	}

	// Every contribution reverted: drop the empty aggregate so next week's
	// carry-forward never sees a phantom zero row.
	if payment.TotalDeliveries <= 0 && payment.TotalReturns <= 0 {
		logger.WithFields(logrus.Fields{"payment_id": payment.PaymentID}).
			Warn("payment emptied by reversals, deleting")
		if err := tx.Where("payment_id = ?", payment.PaymentID).
			Delete(&models.PaymentOrder{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Delete(&models.CarrierPayment{}, "payment_id = ?", payment.PaymentID).Error; err != nil {
			return nil, err
		}
		return nil, nil
	}

	logger.WithFields(logrus.Fields{
		"payment_id": payment.PaymentID,
		"deliveries": payment.TotalDeliveries,
		"returns":    payment.TotalReturns,
		"net":        payment.NetAmount.String(),
		"final":      payment.FinalAmount.String(),
	}).Info("weekly payment updated")

	return payment, nil
}

// findOrCreatePayment locates the carrier's aggregate for the week holding
// a row lock, creating it with the previous week's negative balance carried
// forward. The carry-forward is captured once, at creation.
func findOrCreatePayment(tx *gorm.DB, logger *logrus.Logger, carrierId string, weekStart time.Time) (*models.CarrierPayment, error) {
	payment, err := models.GetPaymentForUpdate(tx, carrierId, weekStart)
	if err != nil {
		config.LogError(logger, "paymentWorkflow.go", "findOrCreatePayment", "GetPaymentForUpdate", carrierId, err)
		return nil, err
	}
	if payment != nil {
		return payment, nil
	}

	previousBalance, err := models.PreviousNegativeBalance(tx, carrierId, weekStart)
	if err != nil {
		config.LogError(logger, "paymentWorkflow.go", "findOrCreatePayment", "PreviousNegativeBalance", carrierId, err)
		return nil, err
	}

	paymentId, err := models.NextPaymentId(tx)
	if err != nil {
		return nil, err
	}
	payment = &models.CarrierPayment{
		PaymentID:       paymentId,
		CarrierID:       carrierId,
		WeekStartDate:   weekStart,
		WeekEndDate:     weekStart.AddDate(0, 0, 6),
		PreviousBalance: previousBalance,
		FinalAmount:     previousBalance,
		PaymentStatus:   models.PaymentStatusPending,
	}
	if err := tx.Create(payment).Error; err != nil {
		config.LogError(logger, "paymentWorkflow.go", "findOrCreatePayment", "Create payment", payment, err)
		return nil, err
	}
	return payment, nil
}

func createPaymentOrder(tx *gorm.DB, logger *logrus.Logger, paymentId, orderId string,
	contributionType models.ContributionType, amount, orderTotal, commission decimal.Decimal) error {

	existing, err := models.FindPaymentOrder(tx, paymentId, orderId, contributionType)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	linkId, err := models.NextPaymentLinkId(tx)
	if err != nil {
		return err
	}
	link := models.PaymentOrder{
		PaymentOrderID:    linkId,
		PaymentID:         paymentId,
		OrderID:           orderId,
		ContributionType:  contributionType,
		AmountContributed: amount,
		OrderTotal:        orderTotal,
		CommissionApplied: commission,
	}
	if err := tx.Create(&link).Error; err != nil {
		config.LogError(logger, "paymentWorkflow.go", "createPaymentOrder", "Create link", link, err)
		return err
	}
	return nil
}

type SettlementInput struct {
	CarrierID  string     `json:"carrier_id" binding:"required"`
	PaymentIDs []string   `json:"payment_ids" binding:"required,min=1"`
	WalletID   string     `json:"wallet_id" binding:"required"`
	PaidDate   *time.Time `json:"paid_date"`
}

type SettlementResult struct {
	PaymentsProcessed   int             `json:"payments_processed"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	Currency            string          `json:"currency"`
	WalletID            string          `json:"wallet_id"`
	PaidDate            time.Time       `json:"paid_date"`
	TransactionsCreated []string        `json:"transactions_created"`
}

// ProcessBatchSettlement marks the carrier's pending payments paid and
// credits the settlement wallet with one income transaction per payment,
// all in one unit of work. A distributed lock per carrier keeps two
// operators from settling the same batch concurrently; the
// unique (reference_type=payment, reference_id) index makes a replay
// fail with DuplicateSettlementError instead of double-crediting.
func ProcessBatchSettlement(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, input SettlementInput) (*SettlementResult, error) {
	release, err := utils.SettlementLock(ctx, input.CarrierID, "paymentWorkflow.go", "ProcessBatchSettlement")
	if err != nil {
		config.LogError(logger, "paymentWorkflow.go", "ProcessBatchSettlement", "SettlementLock", input.CarrierID, err)
		return nil, err
	}
	defer release()

	if _, err := models.GetAccountById(tx, input.WalletID); err != nil {
		return nil, err
	}

	paidDate := time.Now()
	if input.PaidDate != nil {
		paidDate = *input.PaidDate
	}

	payments := make([]*models.CarrierPayment, 0, len(input.PaymentIDs))
	for _, paymentId := range input.PaymentIDs {
		payment, err := models.GetPaymentById(tx, paymentId)
		if err != nil {
			return nil, err
		}
		if payment.CarrierID != input.CarrierID {
			return nil, &utils.ValidationError{
				Field:   "payment_ids",
				Message: fmt.Sprintf("payment %s belongs to carrier %s, not %s", paymentId, payment.CarrierID, input.CarrierID),
			}
		}
		if payment.PaymentStatus != models.PaymentStatusPending {
			return nil, &utils.ValidationError{
				Field:   "payment_ids",
				Message: fmt.Sprintf("payment %s is %s, only pending payments can be settled", paymentId, payment.PaymentStatus),
			}
		}
		if !payment.FinalAmount.IsPositive() {
			return nil, &utils.ValidationError{
				Field:   "payment_ids",
				Message: fmt.Sprintf("payment %s has final amount %s, must be positive to settle", paymentId, payment.FinalAmount),
			}
		}
		payments = append(payments, payment)
	}

	result := &SettlementResult{
		TotalAmount: decimal.Zero,
		Currency:    string(models.BaseCurrency),
		WalletID:    input.WalletID,
		PaidDate:    paidDate,
	}

	for _, payment := range payments {
		existing, err := models.FindTransactionByReference(tx, models.TransactionReferencePayment, payment.PaymentID)
		if err != nil {
			config.LogError(logger, "paymentWorkflow.go", "ProcessBatchSettlement", "FindTransactionByReference", payment.PaymentID, err)
			return nil, err
		}
		if existing != nil {
			return nil, &utils.DuplicateSettlementError{
				PaymentID:     payment.PaymentID,
				TransactionID: existing.TransactionID,
			}
		}

		if err := tx.Model(&models.CarrierPayment{}).
			Where("payment_id = ?", payment.PaymentID).
			Updates(map[string]interface{}{
				"payment_status":        models.PaymentStatusPaid,
				"received_in_wallet_id": input.WalletID,
				"paid_date":             paidDate,
			}).Error; err != nil {
			config.LogError(logger, "paymentWorkflow.go", "ProcessBatchSettlement", "Mark paid", payment.PaymentID, err)
			return nil, err
		}

		referenceType := models.TransactionReferencePayment
		referenceId := payment.PaymentID
		description := fmt.Sprintf("Weekly COD settlement - carrier %s - week %s - deliveries %d (%s) - returns %d (%s) - total %s",
			payment.CarrierID, payment.WeekStartDate.Format("2006-01-02"),
			payment.TotalDeliveries, payment.TotalDeliveriesAmount,
			payment.TotalReturns, payment.TotalReturnsAmount,
			payment.FinalAmount)

		transaction, err := CreateTransaction(tx, logger, TransactionInput{
			TransactionType: models.TransactionTypeIncome,
			Amount:          payment.FinalAmount,
			Currency:        models.BaseCurrency,
			ToAccountID:     &input.WalletID,
			ReferenceType:   &referenceType,
			ReferenceID:     &referenceId,
			Description:     description,
			TransactionDate: &paidDate,
		})
		if err != nil {
			// The read check above cannot see a racing settlement's
			// uncommitted transaction; the unique reference index can.
			if isDuplicateKeyErr(err) {
				return nil, &utils.DuplicateSettlementError{PaymentID: payment.PaymentID}
			}
			return nil, err
		}

		result.PaymentsProcessed++
		result.TotalAmount = result.TotalAmount.Add(payment.FinalAmount)
		result.TransactionsCreated = append(result.TransactionsCreated, transaction.TransactionID)
	}

	logger.WithFields(logrus.Fields{
		"carrier_id": input.CarrierID,
		"payments":   result.PaymentsProcessed,
		"total":      result.TotalAmount.String(),
		"wallet":     input.WalletID,
	}).Info("batch settlement completed")

	return result, nil
}

// NegativeBalanceAlert flags a carrier whose debt has stayed below the
// alerting threshold for a run of consecutive weeks.
type NegativeBalanceAlert struct {
	CarrierID        string          `json:"carrier_id"`
	PaymentID        string          `json:"payment_id"`
	WeekStart        time.Time       `json:"week_start"`
	Balance          decimal.Decimal `json:"balance"`
	ConsecutiveWeeks int             `json:"consecutive_weeks"`
}

// CheckNegativeBalanceAlerts scans pending payments for carriers whose
// balance sat below -threshold for at least minWeeks consecutive weeks,
// counting back from each carrier's most recent negative week. Read-only.
func CheckNegativeBalanceAlerts(ctx context.Context, threshold decimal.Decimal, minWeeks int) ([]NegativeBalanceAlert, error) {
	if !threshold.IsPositive() {
		threshold = decimal.NewFromInt(10000)
	}
	if minWeeks < 1 {
		minWeeks = 1
	}
	payments, err := models.ListNegativePayments(ctx)
	if err != nil {
		return nil, err
	}

	// Newest negative week per carrier, in week_start order.
	byCarrier := make(map[string][]models.CarrierPayment)
	for _, payment := range payments {
		if payment.FinalAmount.LessThan(threshold.Neg()) {
			byCarrier[payment.CarrierID] = append(byCarrier[payment.CarrierID], payment)
		}
	}

	var alerts []NegativeBalanceAlert
	for carrierId, weeks := range byCarrier {
		sort.Slice(weeks, func(i, j int) bool {
			return weeks[i].WeekStartDate.After(weeks[j].WeekStartDate)
		})
		streak := 1
		for i := 1; i < len(weeks); i++ {
			gap := weeks[i-1].WeekStartDate.Sub(weeks[i].WeekStartDate)
			if gap > 8*24*time.Hour {
				break
			}
			streak++
		}
		if streak < minWeeks {
			continue
		}
		latest := weeks[0]
		alerts = append(alerts, NegativeBalanceAlert{
			CarrierID:        carrierId,
			PaymentID:        latest.PaymentID,
			WeekStart:        latest.WeekStartDate,
			Balance:          latest.FinalAmount,
			ConsecutiveWeeks: streak,
		})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CarrierID < alerts[j].CarrierID })
	return alerts, nil
}
