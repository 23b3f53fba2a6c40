package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/generator"
)

// sessionTTL matches how long Discord accepts responses to an interaction.
const sessionTTL = 15 * time.Minute

func InstanceIDFromInteraction(i *discordgo.InteractionCreate) string {
	var customID string

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = i.ModalSubmitData().CustomID
	default:
		return ""
	}

	return InstanceIDFromCustomID(customID)
}

func InstanceIDFromCustomID(customID string) string {
	parts := strings.SplitN(customID, ":", 2)
	if len(parts) != 2 {
		return ""
	}

	return parts[1]
}

// FlowContext carries state between the steps of one flow instance.
type FlowContext struct {
	InstanceID string
	State      map[string]any
}

type NodeHandler func(context.Context, DiscordSession, *discordgo.InteractionCreate, *FlowContext) error

// Node is one step of a flow. A node without Next ends the flow.
type Node struct {
	ID      string
	Matcher func(*discordgo.InteractionCreate) bool
	Handler NodeHandler
	Next    []*Node
}

type Flow struct {
	ID   string
	Root *Node
}

// CommandFlow is a flow of one step answering the slash command name.
func CommandFlow(name string, handler NodeHandler) *Flow {
	return &Flow{
		ID: name,
		Root: &Node{
			ID:      name,
			Matcher: IsCommand(name),
			Handler: handler,
		},
	}
}

func IsCommand(name string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionApplicationCommand {
			return false
		}
		return i.ApplicationCommandData().Name == name
	}
}

// IsSubCommand matches /name sub.
func IsSubCommand(name, sub string) func(*discordgo.InteractionCreate) bool {
	isCommand := IsCommand(name)
	return func(i *discordgo.InteractionCreate) bool {
		if !isCommand(i) {
			return false
		}
		options := i.ApplicationCommandData().Options
		return len(options) > 0 && options[0].Name == sub
	}
}

// IsComponent matches components whose custom ID starts with component.
func IsComponent(component string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionMessageComponent {
			return false
		}
		customID := i.MessageComponentData().CustomID
		return customID == component || strings.HasPrefix(customID, component+":")
	}
}

type session struct {
	flow    *Flow
	node    *Node
	ctx     *FlowContext
	expires time.Time
}

// FlowManager routes interactions to registered flows and remembers where
// each multi-step flow instance is.
type FlowManager struct {
	flowsMu *sync.RWMutex
	flows   []*Flow

	sessionsMu *sync.RWMutex
	sessions   map[string]*session

	idGenerator generator.Generator[string]
	now         func() time.Time
}

func NewFlowManager(idGenerator generator.Generator[string]) *FlowManager {
	if idGenerator == nil {
		idGenerator = &generator.UUIDV4Generator{}
	}
	return &FlowManager{
		flowsMu:     &sync.RWMutex{},
		sessionsMu:  &sync.RWMutex{},
		sessions:    make(map[string]*session),
		idGenerator: idGenerator,
		now:         time.Now,
	}
}

// RegisterFlow adds flow. Flows are tried in registration order.
func (fm *FlowManager) RegisterFlow(flow *Flow) {
	fm.flowsMu.Lock()
	defer fm.flowsMu.Unlock()

	for _, f := range fm.flows {
		if f.ID == flow.ID {
			panic(fmt.Sprintf("flow %q already registered", flow.ID))
		}
	}
	fm.flows = append(fm.flows, flow)
}

// Router runs the step of a flow instance the interaction belongs to, or
// starts a new flow. It returns ErrNoFlow when nothing matches.
func (fm *FlowManager) Router(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) error {
	fm.prune()

	instanceID := InstanceIDFromInteraction(i)
	if instanceID != "" {
		fm.sessionsMu.RLock()
		session, inFlow := fm.sessions[instanceID]
		fm.sessionsMu.RUnlock()
		if inFlow {
			return fm.advance(ctx, s, i, session)
		}
		if i.Type == discordgo.InteractionMessageComponent {
			return ErrFlowExpired
		}
	}

	return fm.initializeFlow(ctx, s, i)
}

func (fm *FlowManager) prune() {
	now := fm.now()
	fm.sessionsMu.Lock()
	defer fm.sessionsMu.Unlock()
	for id, sess := range fm.sessions {
		if now.After(sess.expires) {
			delete(fm.sessions, id)
		}
	}
}

func (fm *FlowManager) finish(instanceID string) {
	fm.sessionsMu.Lock()
	delete(fm.sessions, instanceID)
	fm.sessionsMu.Unlock()
}

func (fm *FlowManager) advance(
	ctx context.Context,
	s DiscordSession,
	i *discordgo.InteractionCreate,
	sess *session,
) error {
	var nextNode *Node
	for _, n := range sess.node.Next {
		if n.Matcher(i) {
			nextNode = n
			break
		}
	}
	if nextNode == nil {
		return ErrNoFlow
	}

	sess.node = nextNode
	if len(nextNode.Next) == 0 {
		fm.finish(sess.ctx.InstanceID)
	}
	return runHandler(ctx, s, i, sess)
}

func (fm *FlowManager) initializeFlow(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) error {
	var f *Flow
	fm.flowsMu.RLock()
	for _, flow := range fm.flows {
		if flow.Root.Matcher(i) {
			f = flow
			break
		}
	}
	fm.flowsMu.RUnlock()
	if f == nil {
		return ErrNoFlow
	}

	instanceID, err := fm.idGenerator.Next()
	if err != nil {
		return fmt.Errorf("failed to generate instance ID: %w", err)
	}

	newSess := &session{
		flow: f,
		node: f.Root,
		ctx: &FlowContext{
			InstanceID: instanceID,
			State:      make(map[string]any),
		},
		expires: fm.now().Add(sessionTTL),
	}

	if len(f.Root.Next) > 0 {
		fm.sessionsMu.Lock()
		fm.sessions[instanceID] = newSess
		fm.sessionsMu.Unlock()
	}

	return runHandler(ctx, s, i, newSess)
}

// Active reports how many flow instances are waiting for their next step.
func (fm *FlowManager) Active() int {
	fm.sessionsMu.RLock()
	defer fm.sessionsMu.RUnlock()
	return len(fm.sessions)
}

func runHandler(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, sess *session) error {
	return sess.node.Handler(ctx, s, i, sess.ctx)
}
