package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/RecoveryAshes/AuthorityHarvest/internal/models"
)

func TestCheckHeader(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		value     string
		wantErr   bool
		wantField string
	}{
		{"合法User-Agent", "User-Agent", "Mozilla/5.0", false, ""},
		{"合法自定义头部", "X-Request-Source", "harvester", false, ""},
		{"空值合法", "X-Empty", "", false, ""},
		{"空名称", "", "v", true, "name"},
		{"名称含空格", "User Agent", "v", true, "name"},
		{"名称含下划线", "X_Custom", "v", true, "name"},
		{"受管理头部Host", "Host", "example.com", true, "name"},
		{"受管理头部大小写", "content-LENGTH", "10", true, "name"},
		{"值含换行", "X-Bad", "a\r\nInjected: 1", true, "value"},
		{"值含中文", "X-Bad", "中文", true, "value"},
		{"值过长", "X-Long", strings.Repeat("a", MaxHeaderValueLength+1), true, "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckHeader(tt.header, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var vErr *models.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("期望ValidationError, 实际 %T", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %s, want %s", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestCheckHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", "Bot/1.0")
	h.Set("Accept-Language", "fr-FR")
	if err := CheckHeaders(h); err != nil {
		t.Errorf("CheckHeaders() error = %v", err)
	}

	h.Set("Connection", "keep-alive")
	if err := CheckHeaders(h); err == nil {
		t.Error("包含Connection时应返回错误")
	}
}

func TestRedactValue(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"非敏感头部原样返回", "User-Agent", "Mozilla/5.0", "Mozilla/5.0"},
		{"Bearer令牌", "Authorization", "Bearer abc.def.ghi", "Bearer ***"},
		{"长API Key", "X-Api-Key", "sk-1234567890abcd", "sk-1***abcd"},
		{"短密钥", "X-Secret", "abc", "***"},
		{"Cookie", "Cookie", "session=0123456789", "sess***6789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactValue(tt.header, tt.value); got != tt.want {
				t.Errorf("RedactValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", "Bot/1.0")
	h.Set("Authorization", "Bearer secret-token")

	got := RedactHeaders(h)
	want := "Authorization: Bearer ***, User-Agent: Bot/1.0"
	if got != want {
		t.Errorf("RedactHeaders() = %q, want %q", got, want)
	}
}
