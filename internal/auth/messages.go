package auth

import "golang.org/x/text/language"

const (
	msgInvalidCredentials = "invalid_credentials"
	msgUserExists         = "user_exists"
	msgNoSession          = "no_session"
	msgMockOAuth          = "mock_oauth"
)

var supportedLanguages = []language.Tag{language.English, language.Arabic}

var languageMatcher = language.NewMatcher(supportedLanguages)

var messages = map[string]map[language.Tag]string{
	msgInvalidCredentials: {
		language.English: "Invalid email or password",
		language.Arabic:  "البريد الإلكتروني أو كلمة المرور غير صحيحة",
	},
	msgUserExists: {
		language.English: "This email is already registered",
		language.Arabic:  "هذا البريد الإلكتروني مسجل بالفعل",
	},
	msgNoSession: {
		language.English: "No active session found",
		language.Arabic:  "لم يتم العثور على جلسة نشطة",
	},
	msgMockOAuth: {
		language.English: "Social login is mocked in this demo environment.",
		language.Arabic:  "تسجيل الدخول الاجتماعي محاكى في هذه البيئة التجريبية.",
	},
}

// matchLanguage picks the closest supported tag; English when nothing matches.
func matchLanguage(preferred ...string) language.Tag {
	_, index := language.MatchStrings(languageMatcher, preferred...)
	return supportedLanguages[index]
}

func translate(tag language.Tag, key string) string {
	byLang, ok := messages[key]
	if !ok {
		return key
	}
	if text, ok := byLang[tag]; ok {
		return text
	}
	return byLang[language.English]
}
