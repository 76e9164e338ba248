package models_test

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/andesdata/commerce_backend/config"
	"bitbucket.org/andesdata/commerce_backend/models"
	"bitbucket.org/andesdata/commerce_backend/utils"
	"bitbucket.org/andesdata/commerce_backend/workflow"
)

// End-to-end order lifecycle: stock must leave on delivery, come back on
// return, and the carrier's weekly aggregate must follow both transitions
// without double-counting.
func TestOrderLifecycleStockAndPaymentFlow(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	db := setupIntegrationDB(t)
	logger := logrus.New()

	var carrier *models.Carrier
	var variant *models.ProductVariant
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		carrier, _, err = models.CreateCarrier(tx, models.CarrierInput{CompanyName: "Lifecycle Cargo"})
		if err != nil {
			return err
		}
		_, err = models.UpsertRate(tx, carrier.CarrierID, models.CarrierRateInput{
			Location:           "LA PAZ",
			CommissionDelivery: decimal.NewFromInt(15),
			CommissionReturn:   decimal.NewFromInt(10),
			CommissionExpress:  decimal.NewFromInt(25),
		})
		if err != nil {
			return err
		}
		variant, _, err = models.FindOrCreateVariant(tx, models.VariantInput{ProductName: "Lifecycle Tee"})
		if err != nil {
			return err
		}
		_, err = workflow.CreateMovement(tx, logger, variant.ProductVariantID, "LA PAZ",
			models.MovementTypeAdjustment, 2, "SEED-"+variant.ProductVariantID, "opening stock")
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	externalId := "EXT-LIFECYCLE-1"
	input := models.OrderInput{
		Customer: models.CustomerInput{
			FullName:   "Maria Quispe",
			Phone:      "70012345",
			Department: "LA PAZ",
		},
		Items: []models.OrderItemInput{{
			VariantInput: models.VariantInput{ProductName: "Lifecycle Tee"},
			Quantity:     2,
			UnitPrice:    decimal.NewFromInt(150),
			Subtotal:     decimal.NewFromInt(300),
		}},
		Total:           decimal.NewFromInt(300),
		ExternalOrderID: &externalId,
		CarrierID:       &carrier.CarrierID,
	}

	var order *models.Order
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, _, err = workflow.CreateFullOrder(tx, logger, input)
		return err
	})
	if err != nil {
		t.Fatalf("CreateFullOrder: %v", err)
	}

	// Replaying the same external id must return the stored order, not a
	// second one.
	err = db.Transaction(func(tx *gorm.DB) error {
		replay, created, err := workflow.CreateFullOrder(tx, logger, input)
		if err != nil {
			return err
		}
		if created {
			t.Fatalf("replay created a second order %s", replay.OrderID)
		}
		if replay.OrderID != order.OrderID {
			t.Fatalf("replay returned %s, want %s", replay.OrderID, order.OrderID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.UpdateOrderStatus(tx, logger, order.OrderID, models.OrderStatusDelivered, "left at door")
		return err
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if stock := mustStock(t, db, variant.ProductVariantID, "LA PAZ"); stock != 0 {
		t.Fatalf("stock after delivery = %d, want 0", stock)
	}
	mustMovement(t, db, order.OrderID, variant.ProductVariantID, models.MovementTypeSale, -2)

	// Replaying the sale movement under the same reference hands back the
	// recorded row instead of draining stock again.
	var firstSale models.InventoryMovement
	if err := db.Where("reference_id = ? AND product_variant_id = ?",
		order.OrderID, variant.ProductVariantID).First(&firstSale).Error; err != nil {
		t.Fatalf("fetch sale movement: %v", err)
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		replayed, err := workflow.CreateMovement(tx, logger, variant.ProductVariantID, "LA PAZ",
			models.MovementTypeSale, -2, order.OrderID, "replayed sale")
		if err != nil {
			return err
		}
		if replayed.MovementID != firstSale.MovementID {
			t.Fatalf("movement replay returned %s, want %s", replayed.MovementID, firstSale.MovementID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("movement replay: %v", err)
	}
	if stock := mustStock(t, db, variant.ProductVariantID, "LA PAZ"); stock != 0 {
		t.Fatalf("stock after movement replay = %d, want 0", stock)
	}

	delivered, err := models.GetOrderById(db, order.OrderID)
	if err != nil {
		t.Fatalf("GetOrderById: %v", err)
	}
	if !delivered.DeliveryCost.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("delivery cost = %s, want 15", delivered.DeliveryCost)
	}

	weekStart := utils.WeekStart(time.Now())
	payment := mustPayment(t, db, carrier.CarrierID, weekStart)
	if payment.TotalDeliveries != 1 || payment.TotalReturns != 0 {
		t.Fatalf("payment counts after delivery: %+v", payment)
	}
	if !payment.FinalAmount.Equal(decimal.NewFromInt(285)) {
		t.Fatalf("final amount after delivery = %s, want 285", payment.FinalAmount)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := workflow.UpdateOrderStatus(tx, logger, order.OrderID, models.OrderStatusReturned, "customer rejected")
		return err
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}

	if stock := mustStock(t, db, variant.ProductVariantID, "LA PAZ"); stock != 2 {
		t.Fatalf("stock after return = %d, want 2", stock)
	}
	mustMovement(t, db, order.OrderID+"-return", variant.ProductVariantID, models.MovementTypeReturn, 2)

	payment = mustPayment(t, db, carrier.CarrierID, weekStart)
	if payment.TotalDeliveries != 0 || payment.TotalReturns != 1 {
		t.Fatalf("payment counts after return: %+v", payment)
	}
	if !payment.NetAmount.Equal(decimal.NewFromInt(-10)) {
		t.Fatalf("net amount after return = %s, want -10", payment.NetAmount)
	}
	if !payment.FinalAmount.Equal(decimal.NewFromInt(-10)) {
		t.Fatalf("final amount after return = %s, want -10", payment.FinalAmount)
	}
}

func mustStock(t *testing.T, db *gorm.DB, variantId, location string) int {
	t.Helper()
	stock, err := models.GetStock(db, variantId, location)
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	return stock
}

func mustMovement(t *testing.T, db *gorm.DB, referenceId, variantId string,
	movementType models.MovementType, quantity int) {
	t.Helper()
	var movement models.InventoryMovement
	err := db.Where("reference_id = ? AND product_variant_id = ?", referenceId, variantId).
		First(&movement).Error
	if err != nil {
		t.Fatalf("movement ref %s: %v", referenceId, err)
	}
	if movement.MovementType != movementType || movement.Quantity != quantity {
		t.Fatalf("movement ref %s: got %s/%d, want %s/%d",
			referenceId, movement.MovementType, movement.Quantity, movementType, quantity)
	}
}

func mustPayment(t *testing.T, db *gorm.DB, carrierId string, weekStart time.Time) *models.CarrierPayment {
	t.Helper()
	var payment *models.CarrierPayment
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = models.GetPaymentForUpdate(tx, carrierId, weekStart)
		return err
	})
	if err != nil {
		t.Fatalf("fetch payment: %v", err)
	}
	if payment == nil {
		t.Fatalf("no payment row for carrier %s week %s", carrierId, weekStart)
	}
	return payment
}

func setupIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "commerce_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	return config.GetDB()
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("commerce-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("commerce-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=commerce_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
