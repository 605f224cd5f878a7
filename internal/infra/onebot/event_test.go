package onebot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_ArrayMessage(t *testing.T) {
	payload := `{
		"post_type": "message",
		"message_type": "group",
		"time": 1700000000,
		"self_id": 10000,
		"message_id": -2147483000,
		"group_id": 123456,
		"user_id": 987654,
		"sender": {"nickname": "nick", "card": "Card Name"},
		"message": [
			{"type": "text", "data": {"text": "hello "}},
			{"type": "image", "data": {"file": "abc.image", "url": "https://img.example/abc"}},
			{"type": "at", "data": {"qq": 10000}},
			{"type": "text", "data": {"text": "world"}}
		]
	}`

	var e Event
	require.NoError(t, json.Unmarshal([]byte(payload), &e))
	assert.True(t, e.IsGroupMessage())
	assert.Equal(t, "Card Name", e.SenderName())
	assert.Equal(t, "-2147483000", e.MessageID.String())

	segs, err := e.Segments()
	require.NoError(t, err)
	require.Len(t, segs, 4)
	assert.Equal(t, "10000", segs[2].Data["qq"])

	text, images := Content(segs)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, []string{"https://img.example/abc"}, images)
}

func TestEvent_StringMessage(t *testing.T) {
	payload := `{"post_type":"message","message_type":"private","user_id":1,"message":"hi [CQ:image,file=a.jpg,url=https://x/a.jpg&#44;b] there"}`

	var e Event
	require.NoError(t, json.Unmarshal([]byte(payload), &e))
	assert.False(t, e.IsGroupMessage())

	segs, err := e.Segments()
	require.NoError(t, err)
	text, images := Content(segs)
	assert.Equal(t, "hi  there", text)
	assert.Equal(t, []string{"https://x/a.jpg,b"}, images)
}

func TestParseCQ(t *testing.T) {
	segs := ParseCQ("&#91;not code&#93; [CQ:face,id=1] tail [CQ:broken")

	require.Len(t, segs, 4)
	assert.Equal(t, "[not code] ", segs[0].Data["text"])
	assert.Equal(t, "face", segs[1].Type)
	assert.Equal(t, "1", segs[1].Data["id"])
	assert.Equal(t, " tail ", segs[2].Data["text"])
	assert.Equal(t, "[CQ:broken", segs[3].Data["text"])
}

func TestEscapeCQ(t *testing.T) {
	in := "[CQ:at,qq=all] &#91;x&#93;"
	escaped := EscapeCQ(in)

	assert.Equal(t, "&#91;CQ:at&#44;qq=all&#93; &amp;#91;x&amp;#93;", escaped)
	segs := ParseCQ(escaped)
	require.Len(t, segs, 1)
	assert.Equal(t, "text", segs[0].Type)
	assert.Equal(t, in, segs[0].Data["text"])
}
