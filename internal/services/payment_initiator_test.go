package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/saukimart/internal/models"
)

func newTestInitiator(store TransactionStore, catalog CatalogLookup, payments PaymentGateway) *PaymentInitiator {
	p := NewPaymentInitiator(store, catalog, payments, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.UnixMilli(1718000000000) }
	return p
}

func testAccount() *VirtualAccount {
	return &VirtualAccount{
		BankName:      "WEMA BANK",
		AccountNumber: "7820000001",
		AccountName:   "SAUKI MART",
		Amount:        310,
		Raw:           []byte(`{"status":"success"}`),
	}
}

func TestNewTxRef(t *testing.T) {
	ref := NewTxRef("DATA", time.UnixMilli(1718000000000))
	assert.Regexp(t, regexp.MustCompile(`^SAUKI-DATA-1718000000000-\d{1,3}$`), ref)
}

func TestInitiateDataPayment(t *testing.T) {
	catalog := newFakeCatalog()
	plan := catalog.addPlan("MTN", 300, 1001)
	store := newMemStore()
	payments := &fakePayments{account: testAccount()}

	out, err := newTestInitiator(store, catalog, payments).InitiateDataPayment(context.Background(), DataPaymentInput{
		PlanID: plan.ID,
		Phone:  " 08031234567 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "WEMA BANK", out.BankName)
	assert.Equal(t, int64(310), out.Amount)
	assert.Equal(t, "Expires soon", out.Note)

	require.Len(t, payments.accountReqs, 1)
	assert.Equal(t, int64(300), payments.accountReqs[0].Amount)
	assert.Equal(t, out.TxRef, payments.accountReqs[0].TxRef)

	txn := store.get(out.TxRef)
	assert.Equal(t, models.StatusPending, txn.Status)
	assert.Equal(t, models.TransactionTypeData, txn.Type)
	assert.Equal(t, int64(300), txn.Amount, "expected amount is the plan price")
	assert.Equal(t, "08031234567", txn.Phone)
	assert.Equal(t, plan.ID, *txn.PlanID)
	assert.NotEmpty(t, txn.IdempotencyKey)
}

func TestInitiateDataPaymentErrors(t *testing.T) {
	catalog := newFakeCatalog()
	plan := catalog.addPlan("MTN", 300, 1001)

	_, err := newTestInitiator(newMemStore(), catalog, &fakePayments{}).
		InitiateDataPayment(context.Background(), DataPaymentInput{PlanID: plan.ID})
	assert.True(t, HasKind(err, ErrorValidation))

	_, err = newTestInitiator(newMemStore(), catalog, &fakePayments{}).
		InitiateDataPayment(context.Background(), DataPaymentInput{PlanID: uuid.New(), Phone: "080"})
	assert.True(t, HasKind(err, ErrorNotFound))

	store := newMemStore()
	gatewayErr := newServiceError(ErrorGateway, errors.New("incomplete bank details"))
	_, err = newTestInitiator(store, catalog, &fakePayments{accountErr: gatewayErr}).
		InitiateDataPayment(context.Background(), DataPaymentInput{PlanID: plan.ID, Phone: "080"})
	assert.True(t, HasKind(err, ErrorGateway))
	assert.Empty(t, store.txns, "no transaction is saved without payment instructions")
}

func TestInitiateEcommercePaymentWithSim(t *testing.T) {
	catalog := newFakeCatalog()
	router := catalog.addProduct("MiFi Router", 25000)
	sim := catalog.addProduct("MTN SIM", 1000)
	store := newMemStore()
	payments := &fakePayments{account: testAccount()}

	out, err := newTestInitiator(store, catalog, payments).InitiateEcommercePayment(context.Background(), EcommercePaymentInput{
		ProductID: router.ID,
		SimID:     &sim.ID,
		Phone:     "08030000000",
		Name:      "Aisha Bello",
		State:     "Kano",
	})
	require.NoError(t, err)
	assert.Contains(t, out.TxRef, "SAUKI-COMM-")

	req := payments.accountReqs[0]
	assert.Equal(t, int64(26000), req.Amount)
	assert.Equal(t, "Aisha Bello", req.FullName)
	assert.Equal(t, "Product: MiFi Router + SIM: MTN SIM", req.Narration)
	assert.Equal(t, sim.ID.String(), req.Meta["included_sim_id"])

	txn := store.get(out.TxRef)
	assert.Equal(t, models.TransactionTypeEcommerce, txn.Type)
	assert.Equal(t, int64(26000), txn.Amount)
	assert.Equal(t, sim.ID, *txn.SimProductID)
	assert.Equal(t, "Kano", txn.DeliveryState)
}

func TestInitiateEcommercePaymentIgnoresUnknownSim(t *testing.T) {
	catalog := newFakeCatalog()
	router := catalog.addProduct("MiFi Router", 25000)
	unknown := uuid.New()
	payments := &fakePayments{account: testAccount()}

	out, err := newTestInitiator(newMemStore(), catalog, payments).InitiateEcommercePayment(context.Background(), EcommercePaymentInput{
		ProductID: router.ID,
		SimID:     &unknown,
		Phone:     "08030000000",
		Name:      "Aisha",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.TxRef)
	assert.Equal(t, int64(25000), payments.accountReqs[0].Amount)
	assert.Nil(t, payments.accountReqs[0].Meta["included_sim_id"])
}
