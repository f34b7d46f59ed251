package lark

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

type fakeMessages struct {
	reqs []*larkim.CreateMessageReq
	resp *larkim.CreateMessageResp
	err  error
}

func (f *fakeMessages) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestMessenger(f *fakeMessages) *Messenger {
	return &Messenger{messages: f, receiveIDType: "user_id", logger: zap.NewNop()}
}

func TestMessenger_SendText(t *testing.T) {
	f := &fakeMessages{resp: &larkim.CreateMessageResp{}}
	m := newTestMessenger(f)

	require.NoError(t, m.SendText(context.Background(), "E2", `say "hi"`))
	require.Len(t, f.reqs, 1)

	body := f.reqs[0].Body
	require.NotNil(t, body)
	assert.Equal(t, "E2", *body.ReceiveId)
	assert.Equal(t, "text", *body.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(*body.Content), &content))
	assert.Equal(t, `say "hi"`, content["text"])
}

func TestMessenger_SendTextErrors(t *testing.T) {
	t.Run("empty recipient", func(t *testing.T) {
		m := newTestMessenger(&fakeMessages{})
		assert.Error(t, m.SendText(context.Background(), "", "hello"))
	})

	t.Run("transport error", func(t *testing.T) {
		m := newTestMessenger(&fakeMessages{err: errors.New("connection reset")})
		assert.ErrorContains(t, m.SendText(context.Background(), "E2", "hello"), "connection reset")
	})

	t.Run("api failure", func(t *testing.T) {
		resp := &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230001, Msg: "invalid receive_id"}}
		m := newTestMessenger(&fakeMessages{resp: resp})
		assert.ErrorContains(t, m.SendText(context.Background(), "E2", "hello"), "230001")
	})
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[string]string
	fail map[string]bool
}

func (r *recordingSender) SendText(ctx context.Context, employeeID string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[employeeID] {
		return errors.New("unreachable")
	}
	if r.sent == nil {
		r.sent = make(map[string]string)
	}
	r.sent[employeeID] = text
	return nil
}

func (r *recordingSender) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sent))
	for id := range r.sent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type grantLister struct {
	grants []*entity.DelegationGrant
}

func (g *grantLister) Create(context.Context, *entity.DelegationGrant) error { return nil }
func (g *grantLister) GetByID(context.Context, int64) (*entity.DelegationGrant, error) {
	return nil, nil
}
func (g *grantLister) Update(context.Context, *entity.DelegationGrant) error { return nil }
func (g *grantLister) Delete(context.Context, int64) error                   { return nil }
func (g *grantLister) ListActiveByDelegate(context.Context, string) ([]*entity.DelegationGrant, error) {
	return nil, nil
}
func (g *grantLister) ListByPrincipal(ctx context.Context, principalID string) ([]*entity.DelegationGrant, error) {
	var out []*entity.DelegationGrant
	for _, grant := range g.grants {
		if grant.PrincipalID == principalID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func stepActivated() *event.Event {
	return event.NewEvent(event.TypeStepActivated, 10, 100, "C1", map[string]interface{}{
		"module_type":          "LEAVE",
		"applicant_id":         "E1",
		"step_order":           2,
		"step_name":            "Manager",
		"assigned_approver_id": "E2",
	})
}

func TestStepNotifier_NotifiesApproverAndDelegates(t *testing.T) {
	today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	grants := &grantLister{grants: []*entity.DelegationGrant{
		{ID: 1, PrincipalID: "E2", DelegateID: "E5", IsActive: true,
			StartDate: today.AddDate(0, 0, -1), EndDate: today.AddDate(0, 0, 1)},
		{ID: 2, PrincipalID: "E2", DelegateID: "E6", IsActive: true,
			StartDate: today.AddDate(0, 0, -1), EndDate: today.AddDate(0, 0, 1),
			RequestTypes: []entity.ModuleType{entity.ModuleExpense}},
		{ID: 3, PrincipalID: "E2", DelegateID: "E7", IsActive: false,
			StartDate: today, EndDate: today},
	}}
	sender := &recordingSender{}

	n := NewStepNotifier(sender, grants, func() time.Time { return today }, zap.NewNop())

	require.NoError(t, n.HandleStepActivated(context.Background(), stepActivated()))

	assert.Equal(t, []string{"E2", "E5"}, sender.recipients())
	assert.Contains(t, sender.sent["E2"], "LEAVE request #100")
	assert.Contains(t, sender.sent["E2"], "step 2 (Manager)")
	assert.NotContains(t, sender.sent["E2"], "on behalf of")
	assert.Contains(t, sender.sent["E5"], "on behalf of E2")
}

func TestStepNotifier_DeliveryFailureDoesNotStopOthers(t *testing.T) {
	today := time.Now()
	grants := &grantLister{grants: []*entity.DelegationGrant{
		{ID: 1, PrincipalID: "E2", DelegateID: "E5", IsActive: true, StartDate: today, EndDate: today},
	}}
	sender := &recordingSender{fail: map[string]bool{"E2": true}}

	n := NewStepNotifier(sender, grants, nil, zap.NewNop())
	require.NoError(t, n.HandleStepActivated(context.Background(), stepActivated()))
	assert.Equal(t, []string{"E5"}, sender.recipients())
}

func TestStepNotifier_IgnoresOtherEvents(t *testing.T) {
	sender := &recordingSender{}
	n := NewStepNotifier(sender, &grantLister{}, nil, zap.NewNop())

	evt := event.NewEvent(event.TypeStepDecided, 10, 100, "C1", nil)
	require.NoError(t, n.HandleStepActivated(context.Background(), evt))
	assert.Empty(t, sender.recipients())
}
