package service

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/slack-go/slack"
)

type sentMessage struct {
	Channel string
	Msg     Message
}

type fakeMessenger struct {
	mu       sync.Mutex
	nextTs   int
	posts    []sentMessage
	updates  []sentMessage
	deletes  []string
	reacts   []string
	homes    map[string][]slack.Block
	members  map[string][]string
	messages map[string]*PostedMessage

	postErr     error
	updateErr   error
	deleteErr   error
	historyErr  error
	membersErr  error
	failThreads bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		nextTs:   1000,
		homes:    make(map[string][]slack.Block),
		members:  make(map[string][]string),
		messages: make(map[string]*PostedMessage),
	}
}

func (f *fakeMessenger) PostMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	if f.failThreads && msg.ThreadTS != "" {
		return "", errors.New("thread post failed")
	}
	f.nextTs++
	f.posts = append(f.posts, sentMessage{Channel: channelID, Msg: msg})
	return strconv.Itoa(f.nextTs) + ".000100", nil
}

func (f *fakeMessenger) UpdateMessage(ctx context.Context, channelID, ts string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, sentMessage{Channel: channelID + "/" + ts, Msg: msg})
	return nil
}

func (f *fakeMessenger) DeleteMessage(ctx context.Context, channelID, ts string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, channelID+"/"+ts)
	return nil
}

func (f *fakeMessenger) AddReaction(ctx context.Context, channelID, ts, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts = append(f.reacts, channelID+"/"+ts+"/"+emoji)
	return nil
}

func (f *fakeMessenger) MessageAt(ctx context.Context, channelID, ts string) (*PostedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.messages[channelID+"/"+ts], nil
}

func (f *fakeMessenger) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return append([]string(nil), f.members[channelID]...), nil
}

func (f *fakeMessenger) PublishHome(ctx context.Context, userID string, blocks []slack.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homes[userID] = blocks
	return nil
}

func (f *fakeMessenger) addSource(channelID, ts, author string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[channelID+"/"+ts] = &PostedMessage{Timestamp: ts, UserID: author}
}

func (f *fakeMessenger) threadReplies(ts string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.posts {
		if p.Msg.ThreadTS == ts {
			out = append(out, p.Msg.Text)
		}
	}
	return out
}

func (f *fakeMessenger) lastUpdate() (sentMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return sentMessage{}, false
	}
	return f.updates[len(f.updates)-1], true
}
