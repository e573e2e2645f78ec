package web

import (
	"fmt"

	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/util"
)

func GetWebfinger(user string, conf *util.AppConfig) (error, string) {
	if err := util.ValidateWebFingerUsername(user); err != nil {
		return err, GetWebFingerNotFound()
	}

	err, acc := db.GetDB().ReadAccByUsername(user)
	if err != nil {
		return err, GetWebFingerNotFound()
	}
	return nil, RenderWebfinger(acc.Username, conf.Conf.SslDomain)
}

// RenderWebfinger builds the webfinger document for a local account
func RenderWebfinger(username, domain string) string {
	return fmt.Sprintf(
		`{
					"subject": "acct:%s@%s",

					"links": [
						{
							"rel": "self",
							"type": "application/activity+json",
							"href": "https://%s/users/%s"
						}
					]
				}`, username, domain, domain, username)
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}
