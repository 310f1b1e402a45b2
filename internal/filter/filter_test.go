package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testFilter() *AdFilter {
	return NewAdFilter(DefaultAdKeywords, []string{"mteacherlu", "xiuchiluchu910", "Lulaoshi_bot"})
}

func TestClassify(t *testing.T) {
	f := testFilter()

	for _, tc := range []struct {
		name    string
		text    string
		isAd    bool
		keyword string
	}{
		{"wechat solicitation", "加我微信 wx:abc123", true, "微信"},
		{"exact phrase wins by order", "快来加微信领福利", true, "加微信"},
		{"whitelisted operator handle", "详情请加 @mteacherlu 咨询", false, ""},
		{"whitelist is case insensitive", "找 @MTeacherLu 就行", false, ""},
		{"whitelisted bot link", "下单 https://t.me/Lulaoshi_bot", false, ""},
		{"raw url", "看这里 https://example.com", true, "https://"},
		{"mention sigil", "找 @someone", true, "@"},
		{"uppercase english", "Add my VX please", true, "vx"},
		{"full width letters", "请加ＶＸ号", true, "加v"},
		{"payment", "支持USDT付款", true, "usdt"},
		{"plain chatter", "今天天气不错", false, ""},
		{"empty", "", false, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			isAd, keyword := f.Classify(tc.text)
			assert.Equal(t, tc.isAd, isAd)
			assert.Equal(t, tc.keyword, keyword)
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	f := testFilter()
	text := "兼职日赚 加微信 https://x.y @z"
	isAd, keyword := f.Classify(text)
	for i := 0; i < 20; i++ {
		again, kw := f.Classify(text)
		assert.Equal(t, isAd, again)
		assert.Equal(t, keyword, kw)
	}
	assert.Equal(t, "加微信", keyword)
}

func TestClassifyWithoutWhitelist(t *testing.T) {
	f := NewAdFilter([]string{"spam", " ", "SPAM"}, nil)
	isAd, keyword := f.Classify("this is Spam")
	assert.True(t, isAd)
	assert.Equal(t, "spam", keyword)
}

func TestAutoReplies(t *testing.T) {
	replies := NewAutoReplies([]ReplyRule{
		{Trigger: "价格", Reply: "price"},
		{Trigger: "怎么进群", Reply: "join"},
		{Trigger: "Price", Reply: "english price"},
		{Trigger: "", Reply: "never"},
	})

	reply, ok := replies.Lookup("请问价格多少，怎么进群")
	assert.True(t, ok)
	assert.Equal(t, "price", reply)

	reply, ok = replies.Lookup("what is the PRICE")
	assert.True(t, ok)
	assert.Equal(t, "english price", reply)

	_, ok = replies.Lookup("hello")
	assert.False(t, ok)
}
