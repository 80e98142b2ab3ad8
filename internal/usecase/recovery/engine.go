package recovery

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rcv-cert-ledger/internal/domain/approval"
	"rcv-cert-ledger/internal/domain/catalog"
	"rcv-cert-ledger/internal/domain/ledger"
	"rcv-cert-ledger/internal/domain/uow"
	"rcv-cert-ledger/internal/infrastructure/cache"
	"rcv-cert-ledger/internal/infrastructure/metrics"
	"rcv-cert-ledger/internal/usecase/materialize"
	"rcv-cert-ledger/pkg/id"
)

const (
	scanLockName = "ledger-recovery"
	scanLockTTL  = 30 * time.Minute
)

// Locker serialises full scans across processes.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

type Deps struct {
	UoW       uow.UnitOfWork
	Companies catalog.CompanyRepository
	Products  catalog.ProductRepository
	Index     ledger.Index
	Reader    ledger.Reader
	// Origin is the fixed identity every anchoring transaction is sent from.
	Origin        string
	Locker        Locker
	ExplorerTxURL string
	Metrics       *metrics.Metrics
}

// Engine rebuilds primary-store entities from anchored certificates. It only
// backfills ledger references or creates entities; approval records are
// read, never written.
type Engine struct {
	uow         uow.UnitOfWork
	companies   catalog.CompanyRepository
	products    catalog.ProductRepository
	index       ledger.Index
	reader      ledger.Reader
	origin      string
	locker      Locker
	explorerURL string
	metrics     *metrics.Metrics
	resolver    materialize.Resolver
	now         func() time.Time
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		uow:         d.UoW,
		companies:   d.Companies,
		products:    d.Products,
		index:       d.Index,
		reader:      d.Reader,
		origin:      d.Origin,
		locker:      d.Locker,
		explorerURL: d.ExplorerTxURL,
		metrics:     d.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Origin() string { return e.origin }

// Certificates lists every decodable certificate sent from the origin,
// oldest first. Failed transactions and foreign payloads are skipped.
func (e *Engine) Certificates(ctx context.Context) ([]Certificate, int, error) {
	if e.origin == "" {
		return nil, 0, ErrOriginNotConfigured
	}
	txs, err := e.index.ListByOrigin(ctx, e.origin)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Certificate, 0, len(txs))
	for _, tx := range txs {
		if tx.Failed() {
			continue
		}
		cert, ok := e.decode(tx)
		if !ok {
			continue
		}
		out = append(out, cert)
	}
	return out, len(txs), nil
}

func (e *Engine) decode(tx ledger.IndexedTx) (Certificate, bool) {
	p, err := ledger.DecodeHex(tx.Input)
	if err != nil {
		return Certificate{}, false
	}
	ref := strings.ToLower(tx.Hash)
	return Certificate{
		TxRef:       ref,
		BlockNumber: tx.BlockNumber,
		BlockTime:   tx.Timestamp,
		ExplorerURL: e.explorerURL + ref,
		Payload:     *p,
	}, true
}

// RecoverAll reconciles every certificate on the ledger with the primary
// store. Each candidate commits on its own; cancellation stops between
// candidates and returns the partial report with ctx's error.
func (e *Engine) RecoverAll(ctx context.Context) (*Report, error) {
	if e.locker != nil {
		release, err := e.locker.Acquire(ctx, scanLockName, scanLockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, ErrScanInProgress
		}
		if err != nil {
			return nil, err
		}
		defer release()
	}

	rep := &Report{Origin: e.origin, StartedAt: e.now()}
	certs, scanned, err := e.Certificates(ctx)
	if err != nil {
		return nil, err
	}
	rep.TransactionsScanned = scanned
	rep.CertificatesFound = len(certs)

	for _, cert := range certs {
		if err := ctx.Err(); err != nil {
			rep.Interrupted = true
			rep.FinishedAt = e.now()
			log.WithField("processed", len(rep.Items)).Warn("ledger recovery interrupted")
			return rep, err
		}
		it := e.reconcileInTx(ctx, cert)
		rep.add(it)
	}
	rep.FinishedAt = e.now()

	log.WithFields(log.Fields{
		"scanned":           rep.TransactionsScanned,
		"certificates":      rep.CertificatesFound,
		"skipped":           rep.SkippedExisting,
		"backfilled":        rep.Backfilled,
		"companies_created": rep.CompaniesCreated,
		"products_created":  rep.ProductsCreated,
		"manual":            len(rep.ManualRecovery),
		"errors":            len(rep.Errors),
	}).Info("ledger recovery finished")
	return rep, nil
}

// RecoverOne reconciles a single transaction fetched straight from the node.
func (e *Engine) RecoverOne(ctx context.Context, txRef string) (*Item, error) {
	v, err := e.Verify(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if !v.Exists {
		return nil, ledger.ErrTxNotFound
	}
	if v.Certificate == nil {
		return nil, ErrNotCertificate
	}
	it := e.reconcileInTx(ctx, *v.Certificate)
	return &it, nil
}

// reconcileInTx runs one candidate as an atomic unit. Auto-created items are
// only reported once the unit has committed.
func (e *Engine) reconcileInTx(ctx context.Context, cert Certificate) Item {
	var it Item
	err := e.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		it, err = e.reconcile(ctx, r, cert)
		return err
	})
	if err != nil {
		it = Item{Certificate: cert, Outcome: OutcomeFailed, Reason: err.Error()}
		log.WithFields(log.Fields{
			"tx_hash":        cert.TxRef,
			"certificate_id": cert.Payload.CertificateID,
		}).WithError(err).Error("recovery candidate failed")
	}
	e.metrics.Recovery(string(it.Outcome))
	return it
}

func (e *Engine) reconcile(ctx context.Context, r uow.Repos, cert Certificate) (Item, error) {
	it := Item{Certificate: cert}
	p := cert.Payload

	if entityID, err := referencedBy(ctx, r, cert.TxRef); err != nil {
		return it, err
	} else if entityID != "" {
		it.Outcome, it.EntityID = OutcomeExisting, entityID
		return it, nil
	}

	// a later round (renewal, update) may have moved the entity to a newer tx
	if rec, err := r.Approvals.FindByLedgerTx(ctx, cert.TxRef); err == nil && rec.EntityCreated {
		if ok, err := entityExists(ctx, r, rec.EntityType, rec.EntityID); err != nil {
			return it, err
		} else if ok {
			it.Outcome, it.EntityID = OutcomeSuperseded, rec.EntityID
			return it, nil
		}
	} else if err != nil && !errors.Is(err, approval.ErrNotFound) {
		return it, err
	}

	// the same round may own the entity through another tx, e.g. one broadcast
	// by an anchoring attempt whose confirmation was never recorded
	if entityID, err := approvedEntity(ctx, r, p); err != nil {
		return it, err
	} else if entityID != "" {
		it.Outcome, it.EntityID = OutcomeSuperseded, entityID
		return it, nil
	}

	if entityID := legacyEntityID(p.CertificateID); entityID != "" {
		done, err := e.backfillByID(ctx, r, &it, approval.EntityType(p.EntityType), entityID)
		if err != nil || done {
			return it, err
		}
	}

	switch approval.EntityType(p.EntityType) {
	case approval.EntityCompany:
		return e.recoverCompany(ctx, r, it)
	case approval.EntityProduct:
		return e.recoverProduct(ctx, r, it)
	default:
		it.Outcome, it.Reason = OutcomeManual, "unknown entity type "+p.EntityType
		return it, nil
	}
}

// referencedBy returns the id of any entity already carrying txRef.
func referencedBy(ctx context.Context, r uow.Repos, txRef string) (string, error) {
	if p, err := r.Products.FindByLedgerTx(ctx, txRef); err == nil {
		return p.ID, nil
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return "", err
	}
	if c, err := r.Companies.FindByLedgerTx(ctx, txRef); err == nil {
		return c.ID, nil
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return "", err
	}
	return "", nil
}

// approvedEntity returns the entity materialized by an approved round for
// the payload's certificate and document, if it still exists.
func approvedEntity(ctx context.Context, r uow.Repos, p ledger.Payload) (string, error) {
	if p.CertificateID == "" || p.PDFHash == "" {
		return "", nil
	}
	rs, err := r.Approvals.ListByCertificate(ctx, p.CertificateID)
	if err != nil {
		return "", err
	}
	for _, rec := range rs {
		if rec.Status != approval.StatusApproved || !rec.EntityCreated ||
			string(rec.EntityType) != p.EntityType || !strings.EqualFold(rec.PDFHash, p.PDFHash) {
			continue
		}
		ok, err := entityExists(ctx, r, rec.EntityType, rec.EntityID)
		if err != nil {
			return "", err
		}
		if ok {
			return rec.EntityID, nil
		}
	}
	return "", nil
}

func entityExists(ctx context.Context, r uow.Repos, t approval.EntityType, entityID string) (bool, error) {
	var err error
	switch t {
	case approval.EntityProduct:
		_, err = r.Products.GetByID(ctx, entityID)
	case approval.EntityCompany:
		_, err = r.Companies.GetByID(ctx, entityID)
	default:
		return false, nil
	}
	if errors.Is(err, catalog.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

var legacyPrefixes = []string{"CERT-PROD-", "CERT-COMP-", "PROD_", "COMP_"}

// legacyEntityID extracts an entity id embedded in a certificate id. Only
// canonical UUIDs count; older ids embed license numbers and timestamps.
func legacyEntityID(certificateID string) string {
	for _, prefix := range legacyPrefixes {
		if rest, ok := strings.CutPrefix(certificateID, prefix); ok {
			if id.IsUUID(rest) {
				return rest
			}
			return ""
		}
	}
	return ""
}

// backfillByID attaches the tx to an entity found by embedded id. done is
// false when no such entity exists.
func (e *Engine) backfillByID(ctx context.Context, r uow.Repos, it *Item, t approval.EntityType, entityID string) (bool, error) {
	switch t {
	case approval.EntityProduct:
		p, err := r.Products.GetByID(ctx, entityID)
		if errors.Is(err, catalog.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		it.EntityID = p.ID
		if p.LedgerTxRef != nil {
			it.Outcome = OutcomeSuperseded
			return true, nil
		}
		p.LedgerTxRef = &it.Certificate.TxRef
		it.Outcome = OutcomeBackfilled
		return true, r.Products.Save(ctx, p)
	case approval.EntityCompany:
		c, err := r.Companies.GetByID(ctx, entityID)
		if errors.Is(err, catalog.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, backfillCompany(ctx, r, it, c)
	}
	return false, nil
}

// backfillCompany never replaces an existing reference; that would make
// repeated scans flip between transactions of the same entity.
func backfillCompany(ctx context.Context, r uow.Repos, it *Item, c *catalog.Company) error {
	it.EntityID = c.ID
	if c.LedgerTxRef != nil {
		it.Outcome = OutcomeSuperseded
		return nil
	}
	c.LedgerTxRef = &it.Certificate.TxRef
	it.Outcome = OutcomeBackfilled
	return r.Companies.Save(ctx, c)
}

func (e *Engine) recoverCompany(ctx context.Context, r uow.Repos, it Item) (Item, error) {
	p := it.Certificate.Payload
	if p.HasEntitySnapshot() && strings.TrimSpace(p.Entity.LicenseNumber) != "" {
		c, err := r.Companies.FindByLicense(ctx, p.Entity.LicenseNumber)
		if err == nil {
			return it, backfillCompany(ctx, r, &it, c)
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return it, err
		}
	}

	c := placeholderCompany(it.Certificate)
	if err := r.Companies.Create(ctx, c); err != nil {
		return it, pkgerrors.Wrap(err, "create recovered company")
	}
	it.Outcome, it.EntityID = OutcomeCreated, c.ID
	log.WithFields(log.Fields{"tx_hash": it.Certificate.TxRef, "company_id": c.ID}).Info("company recovered from ledger")
	return it, nil
}

// placeholderCompany fills whatever the certificate lacks with values an
// operator will recognise and replace.
func placeholderCompany(cert Certificate) *catalog.Company {
	p := cert.Payload
	ref := cert.TxRef
	c := &catalog.Company{
		ID:            id.NewUUID(),
		Name:          p.EntityName,
		Address:       "RECOVERED_FROM_BLOCKCHAIN - Please update",
		LicenseNumber: "RECOVERED_" + prefix(ref, 10),
		Description: "This record was recovered from ledger transaction " + ref +
			". Original registration: " + p.Timestamp + ". Certificate ID: " + p.CertificateID +
			". Please update with accurate information.",
		LedgerTxRef: &ref,
	}
	if p.HasEntitySnapshot() {
		d := p.Entity
		overwrite(&c.Address, d.Address)
		overwrite(&c.LicenseNumber, d.LicenseNumber)
		c.Phone, c.Email, c.BusinessType = d.Phone, d.Email, d.BusinessType
	}
	return c
}

func (e *Engine) recoverProduct(ctx context.Context, r uow.Repos, it Item) (Item, error) {
	if !it.Certificate.Payload.HasEntitySnapshot() {
		it.Outcome, it.Reason = OutcomeManual, ErrInsufficientRecoveryData.Error()+": no entity snapshot (version "+it.Certificate.Payload.Version+")"
		return it, nil
	}
	prod, created, err := e.buildProduct(ctx, r, it.Certificate, Overrides{}, "")
	if errors.Is(err, ErrInsufficientRecoveryData) {
		it.Outcome, it.Reason = OutcomeManual, err.Error()
		return it, nil
	}
	if err != nil {
		return it, err
	}
	it.Outcome, it.EntityID, it.AutoCreated = OutcomeCreated, prod.ID, created
	log.WithFields(log.Fields{
		"tx_hash":      it.Certificate.TxRef,
		"product_id":   prod.ID,
		"auto_created": len(created),
	}).Info("product recovered from ledger")
	return it, nil
}

// Status compares the ledger with the primary store.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st := &Status{Origin: e.origin, CheckedAt: e.now()}
	if e.origin == "" {
		return st, nil
	}
	certs, _, err := e.Certificates(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(certs))
	for _, c := range certs {
		refs = append(refs, c.TxRef)
	}
	st.OnLedger = len(refs)

	var products, companies int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = e.products.CountWithLedgerTx(gctx, refs)
		return err
	})
	g.Go(func() (err error) {
		companies, err = e.companies.CountWithLedgerTx(gctx, refs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	st.PresentLocally = min(products+companies, int64(st.OnLedger))
	st.Missing = int64(st.OnLedger) - st.PresentLocally
	return st, nil
}

// Verify fetches one transaction from the node. A missing or reverted
// transaction reports Exists=false; a foreign payload reports no certificate.
func (e *Engine) Verify(ctx context.Context, txRef string) (*Verification, error) {
	txRef = strings.ToLower(strings.TrimSpace(txRef))
	if e.reader == nil {
		return nil, ErrOriginNotConfigured
	}
	v := &Verification{ExplorerURL: e.explorerURL + txRef}
	tx, err := e.reader.GetTransaction(ctx, txRef)
	if errors.Is(err, ledger.ErrTxNotFound) || errors.Is(err, ledger.ErrTxFailed) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	if tx.Failed() {
		return v, nil
	}
	v.Exists = true
	if cert, ok := e.decode(*tx); ok {
		v.Certificate = &cert
	}
	return v, nil
}

// VerifyPDFHash checks a document hash against the anchored one.
func (e *Engine) VerifyPDFHash(ctx context.Context, txRef, pdfHash string) (*PDFVerification, error) {
	v, err := e.Verify(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if !v.Exists {
		return nil, ledger.ErrTxNotFound
	}
	if v.Certificate == nil {
		return nil, ErrNotCertificate
	}
	anchored := v.Certificate.Payload.PDFHash
	return &PDFVerification{
		TxRef:        v.Certificate.TxRef,
		AnchoredHash: anchored,
		Matches:      anchored != "" && strings.EqualFold(strings.TrimSpace(pdfHash), anchored),
	}, nil
}

func overwrite(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
