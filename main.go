package main

import "github.com/killallgit/audiolingu-api/cmd"

// @title           Audiolingu API
// @version         1.0.0
// @description     Generates personalized language-learning podcast episodes
// @contact.name    API Support
// @contact.url     https://github.com/killallgit/audiolingu-api
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
// @host            localhost:8080
// @BasePath        /
// @schemes         http https
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Bearer token from the identity provider
func main() {
	cmd.Execute()
}
