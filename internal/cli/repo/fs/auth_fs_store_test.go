package fs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// setTempCfg перенастраивает пользовательский конфиг‑каталог в temp для изоляции тестов.
func setTempCfg(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Setenv("APPDATA", dir)
	} else {
		t.Setenv("XDG_CONFIG_HOME", dir)
	}
	return dir
}

func TestAuthFSStore_SaveLoad_Token_TrimsWhitespace(t *testing.T) {
	dir := setTempCfg(t)
	st := AuthFSStore{}
	if err := st.Save("tok-123\n\n"); err != nil {
		t.Fatalf("save token: %v", err)
	}
	// Дозапишем вручную лишние пробелы в конец файла, чтобы проверить trim
	p, _ := st.tokenPath()
	if filepath.Dir(p) != filepath.Join(dir, "SecureDrop") {
		t.Fatalf("token stored outside config dir: %s", p)
	}
	f, _ := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o600)
	_, _ = f.WriteString("  \r\n")
	_ = f.Close()

	tok, err := st.Load()
	if err != nil {
		t.Fatalf("load token: %v", err)
	}
	if tok != "tok-123" {
		t.Fatalf("token not trimmed, got %q", tok)
	}
}

func TestAuthFSStore_Load_TokenMissingOrEmpty(t *testing.T) {
	setTempCfg(t)
	st := AuthFSStore{}
	// отсутствует файл
	if _, err := st.Load(); err == nil {
		t.Fatalf("expected error for missing token file")
	}
	// пустой файл
	p, _ := st.tokenPath()
	_ = os.WriteFile(p, []byte(" \n"), 0o600)
	if _, err := st.Load(); err == nil {
		t.Fatalf("expected error for empty token file")
	}
}

func TestAuthFSStore_SaveLoad_Login_And_Trimming(t *testing.T) {
	setTempCfg(t)
	st := AuthFSStore{}
	if err := st.SaveLogin("alice\n"); err != nil {
		t.Fatalf("save login: %v", err)
	}
	login, err := st.LoadLogin()
	if err != nil {
		t.Fatalf("load login: %v", err)
	}
	if login != "alice" {
		t.Fatalf("login not trimmed, got %q", login)
	}
	if err := st.SaveLogin(""); err == nil {
		t.Fatalf("expected error for empty login")
	}
}

func TestAuthFSStore_Clear(t *testing.T) {
	setTempCfg(t)
	st := AuthFSStore{}
	// очистка без файлов не ошибка
	if err := st.Clear(); err != nil {
		t.Fatalf("clear empty: %v", err)
	}
	_ = st.Save("tok")
	_ = st.SaveLogin("bob")
	if err := st.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := st.Load(); err == nil {
		t.Fatalf("token must be removed")
	}
	if _, err := st.LoadLogin(); err == nil {
		t.Fatalf("login must be removed")
	}
}

func TestAuthFSStore_CustomTokenPath(t *testing.T) {
	setTempCfg(t)
	p := filepath.Join(t.TempDir(), "nested", "token")
	st := AuthFSStore{TokenPath: p}
	if err := st.Save("tok-x"); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "tok-x" {
		t.Fatalf("token not written to custom path: %q %v", b, err)
	}
	if _, err := (AuthFSStore{}).Load(); err == nil {
		t.Fatalf("default path must stay empty")
	}
}
