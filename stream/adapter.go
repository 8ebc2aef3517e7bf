// Package stream adapts physical change-capture records for tenants: it
// decodes which tenant and virtual table a record belongs to, narrows the
// ambient tenant context to that record only, and reverse-maps its keys
// and images back into virtual form before handing it to a caller-supplied
// Handler.
package stream

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/sharedtable/backend"
	"github.com/acksell/sharedtable/fieldcodec"
	"github.com/acksell/sharedtable/itemmap"
	"github.com/acksell/sharedtable/mappingcache"
	"github.com/acksell/sharedtable/metadata"
	"github.com/acksell/sharedtable/prefix"
	"github.com/acksell/sharedtable/tenant"
)

// Labeled is one change-capture record after tenant/table decoding and
// reverse mapping: every field is in the shape the owning tenant's client
// would recognize.
type Labeled struct {
	Tenant         tenant.ID
	VirtualTable   string
	EventName      string
	ShardID        string
	SequenceNumber string
	Keys           map[string]types.AttributeValue
	OldImage       map[string]types.AttributeValue
	NewImage       map[string]types.AttributeValue
}

// Handler receives relabeled records one at a time.
type Handler interface {
	HandleRecord(ctx context.Context, rec Labeled) error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithOnProcessed registers a checkpoint hook invoked after each record is
// successfully handed to Handler, so a caller can persist (shardID,
// sequenceNumber) progress without needing to sniff it out of Labeled.
func WithOnProcessed(fn func(shardID, sequenceNumber string)) Option {
	return func(a *Adapter) { a.onProcessed = fn }
}

// Adapter implements backend.RecordProcessorFactory, decorating a backend's
// raw physical stream with tenant/table-aware relabeling.
type Adapter struct {
	physicalHashAttr string
	codec            *prefix.Codec
	repo             metadata.Repo
	cache            *mappingcache.Cache
	handler          Handler
	onProcessed      func(shardID, sequenceNumber string)
}

var _ backend.RecordProcessorFactory = (*Adapter)(nil)

// NewAdapter constructs an Adapter. physicalHashAttr names the physical
// table's hash-key attribute, the one a table-level FieldMapping always
// maps context-aware and so the one carrying the qualified
// tenant/table/value prefix on every record.
func NewAdapter(physicalHashAttr string, codec *prefix.Codec, repo metadata.Repo, cache *mappingcache.Cache, handler Handler, opts ...Option) *Adapter {
	a := &Adapter{
		physicalHashAttr: physicalHashAttr,
		codec:            codec,
		repo:             repo,
		cache:            cache,
		handler:          handler,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) NewProcessor(shardID string) backend.RecordProcessor {
	return &shardProcessor{adapter: a, shardID: shardID}
}

type shardProcessor struct {
	adapter *Adapter
	shardID string
}

func (p *shardProcessor) ProcessRecords(ctx context.Context, records []backend.Record) error {
	for _, r := range records {
		labeled, err := p.adapter.relabel(ctx, r)
		if err != nil {
			return fmt.Errorf("stream: relabel record on shard %s: %w", p.shardID, err)
		}
		if err := p.adapter.handler.HandleRecord(ctx, labeled); err != nil {
			return fmt.Errorf("stream: handle record on shard %s: %w", p.shardID, err)
		}
		if p.adapter.onProcessed != nil {
			p.adapter.onProcessed(p.shardID, r.SequenceNumber)
		}
	}
	return nil
}

func (p *shardProcessor) Shutdown(ctx context.Context, reason string) error {
	return nil
}

// relabel decodes the record's physical hash key to recover the owning
// tenant and virtual table, resolves that tenant's table mapping under a
// context scoped narrowly to this one record, and reverse-maps the record's
// keys and images through it. The tenant context never leaks beyond this
// call: it is built fresh per record and only threaded into the lookups
// relabel itself makes.
func (a *Adapter) relabel(ctx context.Context, r backend.Record) (Labeled, error) {
	hashAttr, ok := r.Keys[a.physicalHashAttr]
	if !ok {
		return Labeled{}, fmt.Errorf("record missing physical hash attribute %q", a.physicalHashAttr)
	}
	s, ok := hashAttr.(*types.AttributeValueMemberS)
	if !ok {
		return Labeled{}, fmt.Errorf("physical hash attribute %q is not type S", a.physicalHashAttr)
	}
	decoded, err := a.codec.Reverse(s.Value)
	if err != nil {
		return Labeled{}, err
	}

	recordCtx := tenant.WithID(ctx, decoded.Tenant)
	virtual, err := a.repo.GetTableDescription(recordCtx, decoded.VirtualTable)
	if err != nil {
		return Labeled{}, fmt.Errorf("look up virtual table %q: %w", decoded.VirtualTable, err)
	}
	tm, err := a.cache.GetOrCompute(recordCtx, virtual)
	if err != nil {
		return Labeled{}, fmt.Errorf("resolve table mapping for %q: %w", decoded.VirtualTable, err)
	}
	im := itemmap.New(tm, fieldcodec.New(a.codec, virtual.TableName))

	keys, err := im.Reverse(r.Keys)
	if err != nil {
		return Labeled{}, fmt.Errorf("reverse keys: %w", err)
	}
	oldImage, err := reverseImage(im, r.OldImage)
	if err != nil {
		return Labeled{}, fmt.Errorf("reverse old image: %w", err)
	}
	newImage, err := reverseImage(im, r.NewImage)
	if err != nil {
		return Labeled{}, fmt.Errorf("reverse new image: %w", err)
	}

	return Labeled{
		Tenant:         decoded.Tenant,
		VirtualTable:   decoded.VirtualTable,
		EventName:      r.EventName,
		ShardID:        r.ShardID,
		SequenceNumber: r.SequenceNumber,
		Keys:           keys,
		OldImage:       oldImage,
		NewImage:       newImage,
	}, nil
}

func reverseImage(im *itemmap.Mapper, image map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	if image == nil {
		return nil, nil
	}
	return im.Reverse(image)
}
