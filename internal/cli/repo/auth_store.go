package repo

// AuthStore: хранилище токена и логина текущего пользователя CLI.
type AuthStore interface {
	Save(token string) error
	Load() (string, error)
	Clear() error
	SaveLogin(login string) error
	LoadLogin() (string, error)
}
